package dep

import (
	"context"
	"errors"

	"mailflow/config"
	"mailflow/entity"
)

var ErrUnsupportedProvider = errors.New("unsupported provider type")

type SendRequest struct {
	ToEmail     string
	ToName      string
	FromEmail   string
	FromName    string
	ReplyTo     string
	Subject     string
	HtmlContent string
	TextContent string
	TrackingID  string
}

type SendResult struct {
	MessageID string
}

// EmailSender is the port every delivery provider implements. Send
// errors carry an errutil kind so the dispatcher can tell a retryable
// failure from a permanent one.
type EmailSender interface {
	Send(ctx context.Context, req *SendRequest) (*SendResult, error)
	IsConfigured() bool
	Type() entity.ProviderType
}

type SenderFactory struct {
	senders map[entity.ProviderType]EmailSender
}

func NewSenderFactory(ctx context.Context, cfg *config.Config) (*SenderFactory, error) {
	sesSender, err := NewSESSender(ctx, cfg.SES)
	if err != nil {
		return nil, err
	}

	return &SenderFactory{
		senders: map[entity.ProviderType]EmailSender{
			entity.ProviderTypeBrevo: NewBrevoSender(cfg.Brevo),
			entity.ProviderTypeSES:   sesSender,
			entity.ProviderTypeSMTP:  NewSMTPSender(cfg.SMTP),
		},
	}, nil
}

// NewSenderFactoryWithSenders wires an explicit sender set, used by
// tests and by callers that bring their own transport.
func NewSenderFactoryWithSenders(senders ...EmailSender) *SenderFactory {
	f := &SenderFactory{senders: make(map[entity.ProviderType]EmailSender, len(senders))}
	for _, s := range senders {
		f.senders[s.Type()] = s
	}
	return f
}

func (f *SenderFactory) Sender(providerType entity.ProviderType) (EmailSender, error) {
	sender, ok := f.senders[providerType]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return sender, nil
}
