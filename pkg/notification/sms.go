package notification

import (
	"context"
	"fmt"
)

type SMSConfig struct {
	SignName     string
	TemplateCode string
}

// SMSClient adapts a real SMS provider SDK.
type SMSClient interface {
	Send(ctx context.Context, phone, sign, template string, params map[string]string) error
}

// SMS is the fallback channel for emergency contacts without a push token.
type SMS struct {
	cfg SMSConfig
	cli SMSClient
}

func NewSMS(cfg SMSConfig, cli SMSClient) *SMS { return &SMS{cfg: cfg, cli: cli} }

// SendAlert texts the contact that trackedUserName needs attention.
func (a *SMS) SendAlert(ctx context.Context, phone, trackedUserName string) error {
	if a.cli == nil {
		return fmt.Errorf("SMSClient not configured")
	}
	params := map[string]string{"name": trackedUserName}
	return a.cli.Send(ctx, phone, a.cfg.SignName, a.cfg.TemplateCode, params)
}
