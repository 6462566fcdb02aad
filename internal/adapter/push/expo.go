// Package push delivers alert notifications to user devices.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// ExpoNotifier posts messages to an Expo-compatible push endpoint.
type ExpoNotifier struct {
	endpoint    string
	accessToken string
	client      *http.Client
	logger      *slog.Logger
}

// Option configures an ExpoNotifier.
type Option func(*ExpoNotifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *ExpoNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithAccessToken sets the bearer token sent with every request.
func WithAccessToken(token string) Option {
	return func(n *ExpoNotifier) {
		n.accessToken = token
	}
}

// NewExpoNotifier creates a notifier for endpoint.
func NewExpoNotifier(endpoint string, timeout time.Duration, logger *slog.Logger, opts ...Option) (*ExpoNotifier, error) {
	if endpoint == "" {
		return nil, errors.New("push notifier: empty endpoint")
	}
	n := &ExpoNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

type message struct {
	To       string                  `json:"to"`
	Title    string                  `json:"title"`
	Body     string                  `json:"body"`
	Data     domain.NotificationData `json:"data"`
	Sound    string                  `json:"sound"`
	Priority string                  `json:"priority"`
}

type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type pushResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send delivers one notification. It returns true only when the endpoint
// accepted the message with an ok ticket.
func (n *ExpoNotifier) Send(ctx context.Context, notif domain.Notification) (bool, error) {
	body, err := json.Marshal(message{
		To:       notif.Token,
		Title:    notif.Title,
		Body:     notif.Body,
		Data:     notif.Data,
		Sound:    "default",
		Priority: "high",
	})
	if err != nil {
		return false, fmt.Errorf("encode push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if n.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.accessToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("push endpoint: non-2xx response %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	t, err := parseTicket(raw)
	if err != nil {
		return false, err
	}
	if t.Status != "ok" {
		return false, fmt.Errorf("push ticket %s: %s %s", t.Status, t.Details.Error, t.Message)
	}
	n.logger.Debug("push accepted", "alert_id", notif.Data.AlertID, "ticket_id", t.ID)
	return true, nil
}

// parseTicket reads the single ticket from a push response. The endpoint
// returns an object for a single message and an array for batches.
func parseTicket(raw []byte) (ticket, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ticket{Status: "ok"}, nil
	}
	var resp pushResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ticket{}, fmt.Errorf("decode push response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return ticket{}, fmt.Errorf("push endpoint error %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Data) == 0 {
		return ticket{Status: "ok"}, nil
	}

	var t ticket
	if err := json.Unmarshal(resp.Data, &t); err == nil {
		return t, nil
	}
	var batch []ticket
	if err := json.Unmarshal(resp.Data, &batch); err != nil {
		return ticket{}, fmt.Errorf("decode push ticket: %w", err)
	}
	if len(batch) == 0 {
		return ticket{}, errors.New("push response has no tickets")
	}
	return batch[0], nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
