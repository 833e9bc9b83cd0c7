/*
console.go - Development delivery

PURPOSE:
  Logs the rendered document instead of emailing it. Used when no SendGrid
  key is configured, and in tests.
*/
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/cadenza/academy-billing/billing"
)

type ConsoleSender struct {
	Logger *zap.Logger
}

var _ Sender = (*ConsoleSender)(nil)

func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	return &ConsoleSender{Logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, doc Document, recipient *billing.Account) error {
	s.Logger.Info("invoice document (console delivery)",
		zap.String("to", recipient.Email),
		zap.String("subject", doc.Subject),
		zap.String("body", doc.Text),
	)
	return nil
}
