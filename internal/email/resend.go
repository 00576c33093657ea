package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("email api: status %d: %s", e.Status, e.Message)
}

// Resend sends template emails through the Resend HTTP API.
type Resend struct {
	APIKey  string
	From    string
	BaseURL string
	HTTP    *http.Client
}

func NewResend(apiKey, from, baseURL string) *Resend {
	return &Resend{
		APIKey:  apiKey,
		From:    from,
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type resendTemplate struct {
	ID        string            `json:"id"`
	Variables map[string]string `json:"variables,omitempty"`
}

type resendRequest struct {
	From     string         `json:"from"`
	To       []string       `json:"to"`
	Template resendTemplate `json:"template"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (r *Resend) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" || msg.TemplateID == "" {
		return "", errors.New("email: recipient and template are required")
	}

	body, err := json.Marshal(resendRequest{
		From:     r.From,
		To:       []string{msg.To},
		Template: resendTemplate{ID: msg.TemplateID, Variables: msg.Variables},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := r.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("email api: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("email api: read body: %w", err)
	}

	var out resendResponse
	_ = json.Unmarshal(raw, &out)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		m := out.Message
		if m == "" {
			m = strings.TrimSpace(string(raw))
		}
		return "", &APIError{Status: res.StatusCode, Message: m}
	}
	if out.ID == "" {
		return "", errors.New("email api: response without id")
	}
	return out.ID, nil
}
