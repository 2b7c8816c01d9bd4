// Package notification defines the sink compliance alerts are delivered to.
// Delivery and retry are the collaborator's responsibility; the engine only
// hands off payloads after its own transaction has committed.
package notification

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// AlertPayload is the engine-side shape of a compliance notification.
type AlertPayload struct {
	RuleName string `json:"rule_name"`
	Severity string `json:"severity"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Sink receives alert payloads for a user.
type Sink interface {
	Notify(ctx context.Context, userID snowflake.ID, payload AlertPayload) error
}

// RecipientResolver maps an engine user ID to a deliverable address. The
// surrounding system owns user identity; the engine only records IDs.
type RecipientResolver func(ctx context.Context, userID snowflake.ID) (string, error)

// EmailSink delivers alerts over the email provider. Resolution failures are
// reported to the caller, which logs and swallows them (a lost notification
// must never fail a committed financial operation).
type EmailSink struct {
	provider email.Provider
	resolve  RecipientResolver
	log      *zap.Logger
}

func NewEmailSink(provider email.Provider, resolve RecipientResolver, log *zap.Logger) *EmailSink {
	return &EmailSink{
		provider: provider,
		resolve:  resolve,
		log:      log.Named("notification.email"),
	}
}

func (s *EmailSink) Notify(ctx context.Context, userID snowflake.ID, payload AlertPayload) error {
	if s.resolve == nil {
		return fmt.Errorf("no recipient resolver configured")
	}
	address, err := s.resolve(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", userID, err)
	}
	body := fmt.Sprintf("<p><strong>%s</strong> [%s]</p><p>%s</p>", payload.RuleName, payload.Severity, payload.Body)
	return s.provider.Send(ctx, []string{address}, payload.Subject, body)
}

// LogSink writes alerts to the structured log; the default when no resolver
// is wired.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("notification.log")}
}

func (s *LogSink) Notify(ctx context.Context, userID snowflake.ID, payload AlertPayload) error {
	s.log.Warn("compliance alert",
		zap.String("user_id", userID.String()),
		zap.String("rule", payload.RuleName),
		zap.String("severity", payload.Severity),
		zap.String("subject", payload.Subject),
	)
	return nil
}

func newSink(log *zap.Logger) Sink {
	return NewLogSink(log)
}

// Module wires the default notification sink. Hosts embedding the engine
// replace it with fx.Replace and an EmailSink bound to their user directory.
var Module = fx.Module("notification",
	fx.Provide(newSink),
)
