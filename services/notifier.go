package services

import (
	"context"
	"log"

	"gymAccessAPI/internal/notification"
)

// Delivery transports are external collaborators: the core decides what to
// send and to whom, providers decide how. Best-effort only: failures are
// logged with the recipient and reason, never retried here.

type SMSProvider interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]string) error
}

// Notifier fans a rendered message out to whichever channels are configured.
type Notifier struct {
	sms   SMSProvider
	email EmailProvider
	push  PushProvider
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Providers are injected from main.go; a nil provider means that channel is
// not configured and gets skipped.
func (n *Notifier) SetSMSProvider(p SMSProvider)     { n.sms = p }
func (n *Notifier) SetEmailProvider(p EmailProvider) { n.email = p }
func (n *Notifier) SetPushProvider(p PushProvider)   { n.push = p }

func (n *Notifier) SendSMS(ctx context.Context, phoneNumber, message string) error {
	if n.sms == nil || phoneNumber == "" {
		return nil
	}
	if err := n.sms.SendSMS(ctx, phoneNumber, message); err != nil {
		log.Printf("Notifier: SMS to %s failed: %v", phoneNumber, err)
		return err
	}
	return nil
}

func (n *Notifier) SendEmail(ctx context.Context, to, subject, html string) error {
	if n.email == nil || to == "" {
		return nil
	}
	if err := n.email.SendEmail(ctx, to, subject, html); err != nil {
		log.Printf("Notifier: email to %s failed: %v", to, err)
		return err
	}
	return nil
}

func (n *Notifier) SendPush(ctx context.Context, tokens []notification.DeviceToken, msg notification.Message) error {
	if n.push == nil || len(tokens) == 0 {
		return nil
	}
	if err := n.push.SendPush(ctx, tokens, msg.Title, msg.Body, nil); err != nil {
		log.Printf("Notifier: push (%d tokens) failed: %v", len(tokens), err)
		return err
	}
	return nil
}

// Log-only providers, used in development and tests until a real gateway is
// wired in.

type LogSMSProvider struct{}

func (LogSMSProvider) SendSMS(ctx context.Context, phoneNumber, message string) error {
	log.Printf("SMS to %s: %s", phoneNumber, message)
	return nil
}

type LogEmailProvider struct{}

func (LogEmailProvider) SendEmail(ctx context.Context, to, subject, html string) error {
	log.Printf("Email to %s, subject: %s", to, subject)
	return nil
}
