package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client sends transactional mail through Postmark.
type Client struct {
	serverToken string
	fromEmail   string
	httpClient  *http.Client
	apiURL      string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint; tests point it at a local
// server.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		httpClient:  http.DefaultClient,
		apiURL:      "https://api.postmarkapp.com/email",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendAuthCode emails a 6-digit sign-in or invite code.
func (c *Client) SendAuthCode(toEmail, code, purpose, householdName string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	var subject, intro string
	switch purpose {
	case "login":
		subject = "Your Larder sign-in code"
		intro = "Use this code to sign in"
	case "register":
		subject = "Welcome to Larder"
		intro = "Use this code to finish creating your account"
	case "invite":
		subject = fmt.Sprintf("You've been invited to %s on Larder", householdName)
		intro = "Use this code to join the household"
	default:
		subject = "Your Larder code"
		intro = "Use this code to continue"
	}

	textBody := fmt.Sprintf("%s:\n\n%s\n\nThis code expires in 15 minutes.", intro, code)
	htmlBody := fmt.Sprintf(
		`<p>%s:</p><p style="font-size:24px;letter-spacing:4px;"><strong>%s</strong></p><p>This code expires in 15 minutes.</p>`,
		intro, code,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("postmark returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
