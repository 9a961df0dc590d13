package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tallyport/tallyport/internal/config"
)

// reEngagementErrorCode is returned by the gateway when the recipient is
// outside the consent/opt-in window and cannot receive free-form messages.
const reEngagementErrorCode = 131047

// Gateway sends one-time codes to phone numbers through the hosted chat
// platform API.
type Gateway struct {
	baseURL     string
	accessToken string
	senderID    string
	client      *http.Client
}

// NewGateway creates a messaging gateway client
func NewGateway(cfg config.MessagingConfig) *Gateway {
	return &Gateway{
		baseURL:     cfg.APIBaseURL,
		accessToken: cfg.AccessToken,
		senderID:    cfg.SenderID,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendCode delivers a plaintext one-time code to the phone number.
func (g *Gateway) SendCode(ctx context.Context, phone, code string) error {
	if g.accessToken == "" || g.senderID == "" {
		return fmt.Errorf("messaging gateway is not configured")
	}

	payload := sendRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text: textBody{
			Body: fmt.Sprintf("Your Tallyport verification code is %s. It expires in 10 minutes.", code),
		},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", g.baseURL, g.senderID)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var result apiError
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if result.Error.Code == reEngagementErrorCode {
		return fmt.Errorf("recipient has not opted in to receive messages")
	}

	return fmt.Errorf("gateway error: %s", result.Error.Message)
}
