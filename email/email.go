// Package email sends reminder mail through the Microsoft Graph sendMail
// endpoint, authenticating with the OAuth2 client-credentials flow.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcycle-automations/bcycle-automations/rest"
)

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Mailbox the reminders are sent from.
	Sender string
}

type Client struct {
	BaseURL string
	Sender  string

	tokens oauth2.TokenSource
	rest   *rest.Client
}

func NewClient(ctx context.Context, cfg Config) *Client {
	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	return &Client{
		BaseURL: "https://graph.microsoft.com/v1.0",
		Sender:  cfg.Sender,
		tokens:  credentials.TokenSource(ctx),
		rest:    rest.NewClient(http.StatusServiceUnavailable, http.StatusGatewayTimeout),
	}
}

// Send delivers a plain-text message. Transient failures (429/503/504) are
// retried with backoff; any other error status fails the send.
func (c *Client) Send(ctx context.Context, to string, subject string, body string) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("cannot obtain mail access token (%v)", err)
	}

	message := map[string]any{
		"message": map[string]any{
			"subject": subject,
			"body": map[string]any{
				"contentType": "Text",
				"content":     body,
			},
			"toRecipients": []map[string]any{
				{"emailAddress": map[string]any{"address": to}},
			},
		},
		"saveToSentItems": false,
	}

	b, err := json.Marshal(message)
	if err != nil {
		return err
	}

	header := http.Header{
		"Authorization": []string{"Bearer " + token.AccessToken},
		"Content-Type":  []string{"application/json"},
	}

	url := fmt.Sprintf("%s/users/%s/sendMail", c.BaseURL, c.Sender)
	if _, err := c.rest.Do(ctx, http.MethodPost, url, header, b); err != nil {
		return fmt.Errorf("cannot send mail to %s (%w)", to, err)
	}

	return nil
}
