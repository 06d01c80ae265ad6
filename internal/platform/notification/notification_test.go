package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

type mockPublisher struct {
	mu   sync.Mutex
	sent []*Notification
	err  error
}

func (m *mockPublisher) Publish(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.err
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()

	got, err := e.Render(TemplatePrescriptionAdded, map[string]string{
		"patient_name": "Asha",
		"doctor_name":  "Rao",
		"diagnosis":    "viral fever",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Subject != "New prescription from Dr. Rao" {
		t.Errorf("unexpected subject %q", got.Subject)
	}
	if !strings.Contains(got.Body, "Dear Asha") || !strings.Contains(got.Body, "for viral fever") {
		t.Errorf("unexpected body %q", got.Body)
	}
	// Missing keys stay as placeholders.
	if !strings.Contains(got.Body, "{{date}}") {
		t.Errorf("expected unfilled placeholder, got %q", got.Body)
	}

	if _, err := e.Render("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplateEngine_RenderDoesNotMutate(t *testing.T) {
	e := NewTemplateEngine()
	_, _ = e.Render(TemplateLabReportUploaded, map[string]string{"file_name": "cbc.pdf"})
	again, _ := e.Render(TemplateLabReportUploaded, nil)
	if !strings.Contains(again.Subject, "{{file_name}}") {
		t.Errorf("template was modified by an earlier render: %q", again.Subject)
	}
}

func TestNotifier_Notify(t *testing.T) {
	pub := &mockPublisher{}
	n := NewNotifier(pub, nil, zerolog.Nop())

	err := n.Notify(context.Background(), TemplateLabReportUploaded, "patient-1", map[string]string{"file_name": "cbc.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Error("expected id and timestamp")
	}
	if msg.Recipient != "patient-1" || msg.Type != TypeEmail || msg.TemplateID != TemplateLabReportUploaded {
		t.Errorf("unexpected notification %+v", msg)
	}
	if msg.Subject != "New lab report: cbc.pdf" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
}

func TestNotifier_PublishError(t *testing.T) {
	n := NewNotifier(&mockPublisher{err: errors.New("queue down")}, nil, zerolog.Nop())
	err := n.Notify(context.Background(), TemplateLabReportUploaded, "p", nil)
	if err == nil || !strings.Contains(err.Error(), "queue down") {
		t.Errorf("expected wrapped publish error, got %v", err)
	}
}

func TestNotifier_Disabled(t *testing.T) {
	var nilNotifier *Notifier
	if err := nilNotifier.Notify(context.Background(), "anything", "p", nil); err != nil {
		t.Errorf("nil notifier should drop silently, got %v", err)
	}
	if err := NewNotifier(nil, nil, zerolog.Nop()).Notify(context.Background(), "anything", "p", nil); err != nil {
		t.Errorf("notifier without publisher should drop silently, got %v", err)
	}
}

type fakeSQS struct {
	queueName string
	urlErr    error
	sent      []*sqs.SendMessageInput
}

func (f *fakeSQS) GetQueueUrl(_ context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	if f.urlErr != nil {
		return nil, f.urlErr
	}
	f.queueName = aws.ToString(in.QueueName)
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String("http://localhost:4566/000000000000/" + f.queueName)}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisher_Publish(t *testing.T) {
	fake := &fakeSQS{}
	pub, err := NewSQSPublisher(context.Background(), fake, "ehr-notifications")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.queueName != "ehr-notifications" {
		t.Errorf("expected queue lookup by name, got %q", fake.queueName)
	}

	n := &Notification{ID: "n-1", Type: TypeEmail, Recipient: "p-1", Body: "hi", TemplateID: TemplateLabReportUploaded}
	if err := pub.Publish(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.sent))
	}
	in := fake.sent[0]
	if aws.ToString(in.QueueUrl) != "http://localhost:4566/000000000000/ehr-notifications" {
		t.Errorf("unexpected queue url %q", aws.ToString(in.QueueUrl))
	}
	var decoded Notification
	if err := json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &decoded); err != nil {
		t.Fatalf("message body is not JSON: %v", err)
	}
	if decoded.ID != "n-1" || decoded.Recipient != "p-1" {
		t.Errorf("unexpected decoded body %+v", decoded)
	}
	if aws.ToString(in.MessageAttributes["template_id"].StringValue) != TemplateLabReportUploaded {
		t.Errorf("missing template_id attribute")
	}
}

func TestNewSQSPublisher_QueueLookupFails(t *testing.T) {
	_, err := NewSQSPublisher(context.Background(), &fakeSQS{urlErr: errors.New("no such queue")}, "missing")
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected queue lookup error, got %v", err)
	}
}
