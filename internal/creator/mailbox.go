package creator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"giftvault/server/pkg/config"
)

// codePattern matches the six-digit verification code the retailer mails.
var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// mailMessage is the inbox API's message shape.
type mailMessage struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// MailboxClient polls an HTTP inbox API for the purchase verification code.
type MailboxClient struct {
	cfg    config.MailboxConfig
	client *http.Client
}

// NewMailboxClient creates a mailbox poller.
func NewMailboxClient(cfg config.MailboxConfig) *MailboxClient {
	return &MailboxClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// WaitForCode polls the inbox until a verification code arrives or the
// configured wait budget runs out.
func (m *MailboxClient) WaitForCode(ctx context.Context) (string, error) {
	if m.cfg.BaseURL == "" {
		return "", fmt.Errorf("mailbox: base_url not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.MaxWaitSeconds)*time.Second)
	defer cancel()

	var code string
	op := func() error {
		c, err := m.fetchCode(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("Verification code not ready")
			return err
		}
		code = c
		return nil
	}

	poll := backoff.NewConstantBackOff(time.Duration(m.cfg.PollSeconds) * time.Second)
	if err := backoff.Retry(op, backoff.WithContext(poll, ctx)); err != nil {
		return "", fmt.Errorf("mailbox: no verification code within %ds: %w", m.cfg.MaxWaitSeconds, err)
	}
	return code, nil
}

// fetchCode pulls the newest messages and extracts the first code found.
func (m *MailboxClient) fetchCode(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/messages?to=%s", m.cfg.BaseURL, url.QueryEscape(m.cfg.Address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if m.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inbox returned %d", resp.StatusCode)
	}

	var messages []mailMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return "", err
	}
	for _, msg := range messages {
		if match := codePattern.FindStringSubmatch(msg.Body); match != nil {
			return match[1], nil
		}
		if match := codePattern.FindStringSubmatch(msg.Subject); match != nil {
			return match[1], nil
		}
	}
	return "", fmt.Errorf("no code in %d messages", len(messages))
}
