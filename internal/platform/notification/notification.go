// Package notification renders patient-facing messages and hands them to a
// queue. Delivery (email, SMS) is done by whatever consumes the queue.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type NotificationType string

const (
	TypeEmail NotificationType = "email"
	TypeSMS   NotificationType = "sms"
)

const (
	TemplateLabReportUploaded = "lab-report-uploaded"
	TemplatePrescriptionAdded = "prescription-added"
)

// Notification is the message body published to the queue.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Publisher puts a notification on the outbound queue.
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
}

type Template struct {
	ID      string           `json:"id"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
	Type    NotificationType `json:"type"`
}

// TemplateEngine renders {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.RegisterTemplate(Template{
		ID:      TemplateLabReportUploaded,
		Subject: "New lab report: {{file_name}}",
		Body:    "Dear {{patient_name}}, a new lab report ({{file_name}}) was added to your record on {{date}}.",
		Type:    TypeEmail,
	})
	e.RegisterTemplate(Template{
		ID:      TemplatePrescriptionAdded,
		Subject: "New prescription from Dr. {{doctor_name}}",
		Body:    "Dear {{patient_name}}, Dr. {{doctor_name}} added a prescription for {{diagnosis}} on {{date}}.",
		Type:    TypeEmail,
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render fills a template. Placeholders missing from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (*Template, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}

	out := *t
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Subject = strings.ReplaceAll(out.Subject, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, v)
	}
	return &out, nil
}

// Notifier renders templates and publishes the result. A nil Notifier or one
// without a publisher drops everything.
type Notifier struct {
	pub       Publisher
	templates *TemplateEngine
	logger    zerolog.Logger
}

func NewNotifier(pub Publisher, tpl *TemplateEngine, logger zerolog.Logger) *Notifier {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Notifier{pub: pub, templates: tpl, logger: logger}
}

// Notify renders templateID for recipient and publishes it. Failures are
// logged and returned; callers treat them as non-fatal.
func (n *Notifier) Notify(ctx context.Context, templateID, recipient string, data map[string]string) error {
	if n == nil || n.pub == nil {
		return nil
	}

	t, err := n.templates.Render(templateID, data)
	if err != nil {
		return err
	}

	msg := &Notification{
		ID:           uuid.New().String(),
		Type:         t.Type,
		Recipient:    recipient,
		Subject:      t.Subject,
		Body:         t.Body,
		TemplateID:   templateID,
		TemplateData: data,
		CreatedAt:    time.Now().UTC(),
	}
	if err := n.pub.Publish(ctx, msg); err != nil {
		n.logger.Error().Err(err).
			Str("template_id", templateID).
			Str("recipient", recipient).
			Msg("failed to publish notification")
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
