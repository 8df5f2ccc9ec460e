// Package notify defines the outbound notification contract. Dispatch is
// best-effort: failures are logged, never propagated into run status.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers a message to the named channels and recipients.
type Notifier interface {
	Notify(ctx context.Context, channels, recipients []string, message string) error
}

// SlogNotifier logs notifications instead of delivering them. Useful in
// development and as a fallback when no dispatcher is configured.
type SlogNotifier struct {
	logger *slog.Logger
}

func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	return &SlogNotifier{logger: logger.With("module", "notifier")}
}

func (n *SlogNotifier) Notify(ctx context.Context, channels, recipients []string, message string) error {
	n.logger.InfoContext(ctx, "Dispatching notification",
		"channels", channels,
		"recipients", recipients,
		"message", message,
	)

	return nil
}
