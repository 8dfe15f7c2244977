package email

import (
	"context"
	"errors"
	"testing"
)

func TestLogSenderRecordsMessages(t *testing.T) {
	sender := NewLogSender()

	if err := sender.Send(context.Background(), "a@example.com", "subj", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].Address != "a@example.com" || sent[0].Subject != "subj" {
		t.Errorf("unexpected message: %+v", sent[0])
	}
}

func TestLogSenderRejectsEmptyAddress(t *testing.T) {
	sender := NewLogSender()
	if err := sender.Send(context.Background(), "", "subj", "body"); err == nil {
		t.Fatal("expected error for empty address")
	}
	if len(sender.Sent()) != 0 {
		t.Fatal("rejected message must not be recorded")
	}
}

func TestLogSenderRespectsContext(t *testing.T) {
	sender := NewLogSender()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sender.Send(ctx, "a@example.com", "subj", "body"); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
