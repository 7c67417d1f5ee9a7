package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSGateway sends through a form-encoded HTTP SMS API of the kind local
// bulk-SMS providers expose (api_key, senderid, number, message).
type SMSGateway struct {
	apiURL     string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

func NewSMSGateway(apiURL, apiKey, senderID string) (*SMSGateway, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("SMS_API_URL not set")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("SMS_API_KEY not set")
	}
	return &SMSGateway{
		apiURL:     apiURL,
		apiKey:     apiKey,
		senderID:   senderID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type gatewayResponse struct {
	ResponseCode   int    `json:"response_code"`
	MessageID      string `json:"message_id"`
	SuccessMessage string `json:"success_message"`
	ErrorMessage   string `json:"error_message"`
}

func (g *SMSGateway) SendSMS(ctx context.Context, to, msg string) (SendResult, error) {
	formData := url.Values{}
	formData.Set("api_key", g.apiKey)
	formData.Set("senderid", g.senderID)
	formData.Set("number", to)
	formData.Set("message", msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL,
		strings.NewReader(formData.Encode()))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("sms gateway error %s: %s", resp.Status, string(respBody))
	}

	var out gatewayResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return SendResult{}, fmt.Errorf("decode sms gateway response: %w", err)
	}
	// The gateway answers 200 with its own code; 202 means accepted.
	if out.ResponseCode != 0 && out.ResponseCode != http.StatusAccepted {
		return SendResult{}, fmt.Errorf("sms gateway rejected message (code %d): %s", out.ResponseCode, out.ErrorMessage)
	}

	id := out.MessageID
	if id == "" {
		id = fmt.Sprintf("sms-%d", time.Now().UnixNano())
	}
	return SendResult{MessageID: id, SentAt: time.Now()}, nil
}
