package sender

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, msg string) (SendResult, error)
}

// SheetRow is one line of the order log spreadsheet.
type SheetRow struct {
	OrderID     string    `json:"order_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Customer    string    `json:"customer"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address,omitempty"`
	Product     string    `json:"product"`
	Variant     string    `json:"variant,omitempty"`
	Quantity    int       `json:"quantity"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type SheetLogger interface {
	AppendRow(ctx context.Context, row SheetRow) error
}

var smsTemplates = map[string]*template.Template{
	"order":   template.Must(template.New("order").Parse(`Dear {{.Customer}}, your Seetara order {{.OrderID}} for {{.Product}} (Tk {{.Total}}) is received. We will call you to confirm.`)),
	"inquiry": template.Must(template.New("inquiry").Parse(`Dear {{.Customer}}, thanks for asking about {{.Product}}. Ref {{.OrderID}}. Our team will call you shortly.`)),
}

// RenderSMS renders the confirmation text for a new order or inquiry.
func RenderSMS(row SheetRow) (string, error) {
	tmpl, ok := smsTemplates[row.Kind]
	if !ok {
		return "", fmt.Errorf("no SMS template for kind %q", row.Kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, row); err != nil {
		return "", fmt.Errorf("render SMS: %w", err)
	}
	return buf.String(), nil
}
