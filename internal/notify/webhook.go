package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultWebhookTimeout = 15 * time.Second

// outbound is the JSON body posted to the delivery endpoint.
type outbound struct {
	Kind     string      `json:"kind"`
	To       int64       `json:"to"`
	Text     string      `json:"text,omitempty"`
	File     *Attachment `json:"file,omitempty"`
	Keyboard [][]Button  `json:"keyboard,omitempty"`
}

// WebhookNotifier posts messages as JSON to a transport bridge that speaks the chat
// platform's API.
type WebhookNotifier struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewWebhookNotifier posts to endpoint, authenticating with the bot token.
func NewWebhookNotifier(endpoint, token string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookNotifier{endpoint: strings.TrimSpace(endpoint), token: token, client: client}
}

func (n *WebhookNotifier) SendText(ctx context.Context, to int64, text string, buttons ...[]Button) error {
	return n.post(ctx, outbound{Kind: "text", To: to, Text: text, Keyboard: buttons})
}

func (n *WebhookNotifier) SendPhoto(ctx context.Context, to int64, photo Attachment, caption string, buttons ...[]Button) error {
	return n.post(ctx, outbound{Kind: "photo", To: to, Text: caption, File: &photo, Keyboard: buttons})
}

func (n *WebhookNotifier) SendDocument(ctx context.Context, to int64, doc Attachment, caption string) error {
	return n.post(ctx, outbound{Kind: "document", To: to, Text: caption, File: &doc})
}

func (n *WebhookNotifier) post(ctx context.Context, msg outbound) error {
	body, errMarshal := json.Marshal(msg)
	if errMarshal != nil {
		return fmt.Errorf("notify: marshal: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if errReq != nil {
		return fmt.Errorf("notify: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	resp, errDo := n.client.Do(req)
	if errDo != nil {
		return fmt.Errorf("notify: deliver to %d: %w", msg.To, errDo)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify: deliver to %d: unexpected status %d", msg.To, resp.StatusCode)
	}
	return nil
}

// WebhookGate asks a bridge endpoint whether a user is a channel member. The endpoint
// answers {"status": "..."}; member, administrator and creator count as members.
type WebhookGate struct {
	endpoint string
	channel  string
	token    string
	client   *http.Client
}

// NewWebhookGate queries endpoint for membership of channel.
func NewWebhookGate(endpoint, channel, token string, client *http.Client) *WebhookGate {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookGate{endpoint: strings.TrimSpace(endpoint), channel: channel, token: token, client: client}
}

func (g *WebhookGate) IsMember(ctx context.Context, userID int64) (bool, error) {
	u, errParse := url.Parse(g.endpoint)
	if errParse != nil {
		return false, fmt.Errorf("notify: parse membership endpoint: %w", errParse)
	}
	q := u.Query()
	q.Set("chat_id", g.channel)
	q.Set("user_id", strconv.FormatInt(userID, 10))
	u.RawQuery = q.Encode()

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if errReq != nil {
		return false, fmt.Errorf("notify: build membership request: %w", errReq)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, errDo := g.client.Do(req)
	if errDo != nil {
		return false, fmt.Errorf("notify: membership check: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return false, fmt.Errorf("notify: membership check: unexpected status %d", resp.StatusCode)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if errDecode := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); errDecode != nil {
		return false, fmt.Errorf("notify: decode membership: %w", errDecode)
	}
	switch payload.Status {
	case "member", "administrator", "creator":
		return true, nil
	default:
		return false, nil
	}
}

// StaticGate answers membership from a fixed policy. A nil Members set with AllowAll
// admits everyone; otherwise only listed identities pass.
type StaticGate struct {
	AllowAll bool
	Members  map[int64]bool
}

func (g StaticGate) IsMember(_ context.Context, userID int64) (bool, error) {
	if g.AllowAll {
		return true, nil
	}
	return g.Members[userID], nil
}
