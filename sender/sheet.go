package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SheetWebhook appends rows through a spreadsheet web-app endpoint that
// accepts one JSON object per request.
type SheetWebhook struct {
	url        string
	httpClient *http.Client
}

func NewSheetWebhook(url string) *SheetWebhook {
	return &SheetWebhook{url: url, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (s *SheetWebhook) AppendRow(ctx context.Context, row SheetRow) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheet webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sheet webhook error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
