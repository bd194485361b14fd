// Package push delivers web push messages to browser subscriptions.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/spec-kit/resource-queue/internal/domain"
)

// ErrSubscriptionGone reports that the push service no longer knows the endpoint.
var ErrSubscriptionGone = errors.New("push subscription gone")

// Pusher sends one payload to one subscription.
type Pusher interface {
	Send(ctx context.Context, sub domain.WebPushSubscription, payload []byte) error
}

// Config holds the VAPID identity of the application server.
type Config struct {
	Subject    string
	PublicKey  string
	PrivateKey string
	TTLSeconds int
}

// Enabled reports whether VAPID keys are configured.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

// WebPusher sends VAPID-signed, encrypted web push messages.
type WebPusher struct {
	cfg    Config
	client webpush.HTTPClient
}

// NewWebPusher constructs a pusher. A nil client uses the library default.
func NewWebPusher(cfg Config, client webpush.HTTPClient) *WebPusher {
	return &WebPusher{cfg: cfg, client: client}
}

// Send delivers payload. 404 and 410 responses map to ErrSubscriptionGone.
func (p *WebPusher) Send(ctx context.Context, sub domain.WebPushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{Auth: sub.Keys.Auth, P256dh: sub.Keys.P256dh},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.cfg.Subject,
		VAPIDPublicKey:  p.cfg.PublicKey,
		VAPIDPrivateKey: p.cfg.PrivateKey,
		TTL:             p.cfg.TTLSeconds,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service responded %d", resp.StatusCode)
	}
	return nil
}

// NoopPusher drops every message. It is used when VAPID keys are not configured.
type NoopPusher struct{}

// Send does nothing.
func (NoopPusher) Send(context.Context, domain.WebPushSubscription, []byte) error {
	return nil
}
