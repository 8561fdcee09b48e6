package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

type ExpoPushConfig struct {
	Endpoint  string
	Sound     string // iOS sound asset, e.g. "safii_alert.wav"
	ChannelID string // Android channel, e.g. "safii_alert_channel"
}

// PushMessage is one Expo push request entry.
type PushMessage struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Sound     string                 `json:"sound,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// PushClient sends a batch of messages. Injected so tests and unconfigured
// deployments can swap the transport out.
type PushClient interface {
	Send(ctx context.Context, messages []PushMessage) error
}

// ExpoPush delivers best-effort alert notifications through the Expo push
// API. Delivery failure is never part of alert correctness.
type ExpoPush struct {
	cfg ExpoPushConfig
	cli PushClient
}

func NewExpoPush(cfg ExpoPushConfig, cli PushClient) *ExpoPush {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultExpoPushURL
	}
	if cli == nil {
		cli = &httpPushClient{endpoint: cfg.Endpoint, http: &http.Client{Timeout: 10 * time.Second}}
	}
	return &ExpoPush{cfg: cfg, cli: cli}
}

// PushToTokens fans one payload out to every valid token. Tokens that do not
// look like Expo tokens are skipped rather than failing the batch.
func (p *ExpoPush) PushToTokens(ctx context.Context, tokens []string, title, body string, data map[string]interface{}) error {
	messages := make([]PushMessage, 0, len(tokens))
	for _, token := range tokens {
		if !strings.HasPrefix(token, "ExponentPushToken") {
			continue
		}
		messages = append(messages, PushMessage{
			To:        token,
			Title:     title,
			Body:      body,
			Sound:     p.cfg.Sound,
			ChannelID: p.cfg.ChannelID,
			Data:      data,
		})
	}
	if len(messages) == 0 {
		return nil
	}
	return p.cli.Send(ctx, messages)
}

type httpPushClient struct {
	endpoint string
	http     *http.Client
}

func (c *httpPushClient) Send(ctx context.Context, messages []PushMessage) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-encoding", "gzip, deflate")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("expo push: unexpected status %d", resp.StatusCode)
	}
	return nil
}
