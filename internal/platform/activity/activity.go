// Package activity records who did what in the clinic. Entries go to the
// activity_logs table and, when configured, to a Kafka topic.
package activity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ehrai/internal/platform/auth"
)

// Entry maps to the activity_logs table.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"user_role"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip_address,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

type RecorderFunc func(ctx context.Context, e *Entry) error

func (f RecorderFunc) Record(ctx context.Context, e *Entry) error {
	return f(ctx, e)
}

// Fanout records to every recorder and joins their errors.
func Fanout(recorders ...Recorder) Recorder {
	return RecorderFunc(func(ctx context.Context, e *Entry) error {
		var errs []error
		for _, r := range recorders {
			if r == nil {
				continue
			}
			if err := r.Record(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

type (
	requestIDKey struct{}
	remoteIPKey  struct{}
)

// WithRequestID attaches the request id picked up by Log.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey{}, ip)
}

// Logger is the entry point services use. Recording never fails the caller.
type Logger struct {
	rec    Recorder
	logger zerolog.Logger
}

func NewLogger(rec Recorder, logger zerolog.Logger) *Logger {
	return &Logger{rec: rec, logger: logger}
}

// Log records action for the caller identified in ctx.
func (l *Logger) Log(ctx context.Context, action string) {
	e := &Entry{
		Role:   auth.PrimaryRole(ctx),
		UserID: auth.UserIDFromContext(ctx),
		Action: action,
	}
	e.RequestID, _ = ctx.Value(requestIDKey{}).(string)
	e.IPAddress, _ = ctx.Value(remoteIPKey{}).(string)
	l.Record(ctx, e)
}

// Record stamps and stores e, logging failures.
func (l *Logger) Record(ctx context.Context, e *Entry) {
	if l == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.logger.Info().
		Str("type", "activity").
		Str("user_role", e.Role).
		Str("user_id", e.UserID).
		Str("request_id", e.RequestID).
		Msg(e.Action)

	if l.rec == nil {
		return
	}
	if err := l.rec.Record(ctx, e); err != nil {
		l.logger.Error().Err(err).Str("action", e.Action).Msg("failed to record activity")
	}
}
