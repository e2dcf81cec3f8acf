package workerproc

import (
	"context"
	"errors"
	"testing"

	"research-backend/internal/analysis"
	"research-backend/internal/extraction"
	"research-backend/internal/queue"
)

type fakeProcessor struct {
	err       error
	got       queue.Message
	requestID string
}

func (f *fakeProcessor) ProcessMessage(ctx context.Context, msg queue.Message) error {
	f.got = msg
	f.requestID = analysis.RequestIDFromContext(ctx)
	return f.err
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return string(body)
}

func TestParseMessageErrors(t *testing.T) {
	if _, _, err := ParseMessage("  "); !errors.As(err, &ErrEmptyBody{}) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}

	_, meta, err := ParseMessage("{bad-json")
	var decodeErr ErrDecode
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if meta.BodyLen != len("{bad-json") || len(meta.BodySHA) != 64 {
		t.Fatalf("unexpected meta %+v", meta)
	}

	_, _, err = ParseMessage(encode(t, queue.Message{RequestID: "req-1"}))
	var missing ErrMissingDocumentID
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingDocumentID, got %v", err)
	}
	if missing.RequestID != "req-1" {
		t.Fatalf("expected request id to survive, got %q", missing.RequestID)
	}
}

func TestHandleMessagePassesRequestID(t *testing.T) {
	proc := &fakeProcessor{}
	body := encode(t, queue.Message{DocumentID: "doc-1", RequestID: "req-9", Reanalyze: true})

	if err := HandleMessage(context.Background(), proc, body); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if proc.got.DocumentID != "doc-1" || !proc.got.Reanalyze {
		t.Fatalf("unexpected message %+v", proc.got)
	}
	if proc.requestID != "req-9" {
		t.Fatalf("expected request id req-9, got %q", proc.requestID)
	}
}

func TestHandleMessageUsesParsedMessage(t *testing.T) {
	proc := &fakeProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.Message{DocumentID: "doc-2"})

	if err := HandleMessage(ctx, proc, "ignored"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if proc.got.DocumentID != "doc-2" {
		t.Fatalf("expected parsed message to be used, got %+v", proc.got)
	}
}

func TestHandleMessageClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"cancelled", extraction.ErrCancelled, analysis.ErrorCodeCancelled, true},
		{"budget", extraction.ErrBudgetExceeded, analysis.ErrorCodeLLMTimeout, true},
		{"invalid output", extraction.ErrInvalidOutput, analysis.ErrorCodeLLMSchemaMismatch, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &fakeProcessor{err: tc.err}
			err := HandleMessage(context.Background(), proc, encode(t, queue.Message{DocumentID: "doc-3", RequestID: "req-3"}))
			var procErr ErrProcess
			if !errors.As(err, &procErr) {
				t.Fatalf("expected ErrProcess, got %v", err)
			}
			if procErr.DocumentID != "doc-3" || procErr.RequestID != "req-3" {
				t.Fatalf("unexpected ids %+v", procErr)
			}
			if procErr.Code != tc.code || procErr.Retryable != tc.retryable {
				t.Fatalf("expected %s/%v, got %s/%v", tc.code, tc.retryable, procErr.Code, procErr.Retryable)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected wrapped cause")
			}
		})
	}
}

func TestHandleMessageWithoutProcessor(t *testing.T) {
	if err := HandleMessage(context.Background(), nil, "{}"); err == nil {
		t.Fatalf("expected error without processor")
	}
}
