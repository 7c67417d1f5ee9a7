package capi

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/myseetara-source/seetara-website-sub001/conversion"
)

// ActionSourceWebsite marks events that originated on the storefront.
const ActionSourceWebsite = "website"

// UserData is the customer contact data used for match quality. Values are
// plain text here and hashed on the way out.
type UserData struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
	City      string
	Country   string
	ClientIP  string
	UserAgent string
	FBP       string
	FBC       string
}

type serverUserData struct {
	Em              []string `json:"em,omitempty"`
	Ph              []string `json:"ph,omitempty"`
	Fn              []string `json:"fn,omitempty"`
	Ln              []string `json:"ln,omitempty"`
	Ct              []string `json:"ct,omitempty"`
	Country         []string `json:"country,omitempty"`
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	Fbp             string   `json:"fbp,omitempty"`
	Fbc             string   `json:"fbc,omitempty"`
}

type CustomData struct {
	Value       *float64 `json:"value,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	ContentName string   `json:"content_name,omitempty"`
	ContentIDs  []string `json:"content_ids,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	OrderID     string   `json:"order_id"`
}

// ServerEvent is one entry of the request's data array.
type ServerEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	ActionSource   string         `json:"action_source"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       serverUserData `json:"user_data"`
	CustomData     CustomData     `json:"custom_data"`
}

// BuildServerEvent maps a conversion event onto the wire shape. event_id is the
// order id verbatim, the same string the pixel sends as eventID.
func BuildServerEvent(e conversion.Event, user UserData, sourceURL string, now time.Time) ServerEvent {
	at := e.OccurredAt()
	if at.IsZero() {
		at = now
	}
	content := conversion.ContentOf(e)
	custom := CustomData{
		ContentName: content.Descriptor(),
		ContentIDs:  content.IDs(),
		OrderID:     e.DedupKey().String(),
	}
	if len(custom.ContentIDs) > 0 {
		custom.ContentType = "product"
	}
	if v, currency, ok := conversion.ValueOf(e); ok {
		value := v
		custom.Value = &value
		custom.Currency = currency
	}
	return ServerEvent{
		EventName:      string(e.Name()),
		EventTime:      at.Unix(),
		EventID:        e.DedupKey().String(),
		ActionSource:   ActionSourceWebsite,
		EventSourceURL: sourceURL,
		UserData:       hashUserData(user),
		CustomData:     custom,
	}
}

func hashUserData(u UserData) serverUserData {
	return serverUserData{
		Em:              hashed(normalizeText(u.Email)),
		Ph:              hashed(NormalizePhone(u.Phone)),
		Fn:              hashed(normalizeText(u.FirstName)),
		Ln:              hashed(normalizeText(u.LastName)),
		Ct:              hashed(strings.ReplaceAll(normalizeText(u.City), " ", "")),
		Country:         hashed(normalizeText(u.Country)),
		ClientIPAddress: u.ClientIP,
		ClientUserAgent: u.UserAgent,
		Fbp:             u.FBP,
		Fbc:             u.FBC,
	}
}

func hashed(v string) []string {
	if v == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(v))
	return []string{hex.EncodeToString(sum[:])}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps digits only and adds the Bangladesh country code to
// local 01XXXXXXXXX numbers.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && strings.HasPrefix(digits, "01") {
		return "88" + digits
	}
	return digits
}
