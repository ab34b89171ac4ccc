// Package whatsapp sends and receives WhatsApp messages through Twilio.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/studenthub/internal/markup"
)

const (
	defaultAPIBase = "https://api.twilio.com/2010-04-01"
	addressPrefix  = "whatsapp:"
)

type Gateway struct {
	accountSID string
	authToken  string
	from       string
	maxLength  int
	client     *http.Client
	logger     *slog.Logger
	apiURL     string
}

func NewGateway(accountSID, authToken, from string, maxLength int, logger *slog.Logger) *Gateway {
	if maxLength <= 0 {
		maxLength = markup.DefaultPlainLimit
	}
	return &Gateway{
		accountSID: accountSID,
		authToken:  authToken,
		from:       Address(from),
		maxLength:  maxLength,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		apiURL:     defaultAPIBase,
	}
}

// AuthToken is the secret inbound webhook signatures are checked against.
func (g *Gateway) AuthToken() string { return g.authToken }

// Address adds the whatsapp: scheme Twilio expects, once.
func Address(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, addressPrefix) {
		return number
	}
	return addressPrefix + number
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send delivers text to the recipient, split into numbered parts when it is
// longer than the per-message limit. An empty from uses the configured
// sender. It returns the SIDs of the messages created.
func (g *Gateway) Send(ctx context.Context, text, to, from string) ([]string, error) {
	if from == "" {
		from = g.from
	}
	to, from = Address(to), Address(from)
	if to == "" {
		return nil, fmt.Errorf("send whatsapp: missing recipient")
	}

	parts := markup.Split(text, g.maxLength)
	sids := make([]string, 0, len(parts))
	for i, part := range parts {
		sid, err := g.post(ctx, part, to, from)
		if err != nil {
			return sids, fmt.Errorf("send part %d/%d: %w", i+1, len(parts), err)
		}
		sids = append(sids, sid)
	}

	g.logger.Info("sent whatsapp message", "to", to, "parts", len(parts))
	return sids, nil
}

func (g *Gateway) post(ctx context.Context, body, to, from string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", g.apiURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var msg messageResponse
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return "", fmt.Errorf("parse twilio response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio error %d (code %d): %s", resp.StatusCode, msg.Code, msg.Message)
	}
	return msg.SID, nil
}
