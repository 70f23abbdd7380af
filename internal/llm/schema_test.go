package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"clean object", `{"a":1}`, `{"a":1}`, false},
		{"leading prose", "Here you go:\n{\"a\":1}", `{"a":1}`, false},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"surrounding whitespace", "  {\"a\":1}  ", `{"a":1}`, false},
		{"no object", "죄송합니다", "", true},
		{"unbalanced braces", "{\"a\":", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

type ratedResponse struct {
	Rating int    `json:"rating"`
	Reason string `json:"reason"`
}

func (r *ratedResponse) Validate() error {
	if r.Rating < 1 || r.Rating > 7 {
		return fmt.Errorf("rating %d out of range", r.Rating)
	}
	return nil
}

func TestCompleteJSON_Success(t *testing.T) {
	mock := NewMockClient().WithScript(`{"rating": 5, "reason": "적절함"}`)

	var out ratedResponse
	if err := CompleteJSON(context.Background(), mock, Request{User: "평가"}, 2, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Rating != 5 || out.Reason != "적절함" {
		t.Errorf("decoded %+v", out)
	}
	if mock.CallCount() != 1 {
		t.Errorf("made %d calls, want 1", mock.CallCount())
	}
}

func TestCompleteJSON_RetriesOnMalformedThenSucceeds(t *testing.T) {
	mock := NewMockClient().WithScript(
		"not json at all",
		`{"rating": 9, "reason": "범위 밖"}`, // schema validation failure
		`{"rating": 4, "reason": "보통"}`,
	)

	var out ratedResponse
	if err := CompleteJSON(context.Background(), mock, Request{User: "평가"}, 2, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Rating != 4 {
		t.Errorf("rating = %d, want 4", out.Rating)
	}
	if mock.CallCount() != 3 {
		t.Errorf("made %d calls, want 3", mock.CallCount())
	}
}

func TestCompleteJSON_ExhaustsRetries(t *testing.T) {
	mock := NewMockClient().WithScript("bad", "bad", "bad")

	var out ratedResponse
	err := CompleteJSON(context.Background(), mock, Request{User: "평가"}, 2, &out)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if mock.CallCount() != 3 {
		t.Errorf("made %d calls, want 3", mock.CallCount())
	}
}

func TestCompleteJSON_PermanentErrorSurfacesImmediately(t *testing.T) {
	permErr := fmt.Errorf("status 401: %w", ErrPermanent)
	mock := NewMockClient().WithError(permErr)

	var out ratedResponse
	err := CompleteJSON(context.Background(), mock, Request{User: "평가"}, 2, &out)
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("made %d calls, want 1 (no retries on permanent errors)", mock.CallCount())
	}
}

func TestCompleteJSON_TransientErrorRetried(t *testing.T) {
	mock := NewMockClient().WithError(errors.New("request timed out"))

	var out ratedResponse
	if err := CompleteJSON(context.Background(), mock, Request{User: "평가"}, 2, &out); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 3 {
		t.Errorf("made %d calls, want 3 (transient errors are retried)", mock.CallCount())
	}
}

func TestNew_UnknownProviderFallsBackToMock(t *testing.T) {
	c := New(ClientConfig{Provider: "madeup"})
	if _, ok := c.(*MockClient); !ok {
		t.Errorf("unknown provider should yield mock, got %T", c)
	}
}

func TestMockClient_Rules(t *testing.T) {
	mock := NewMockClient().
		WithResponse("속마음", `{"command": "에어컨 켜줘"}`).
		WithResponse("평가", `{"rating": 6}`)

	got, err := mock.Complete(context.Background(), Request{User: "[상황] 속마음: 덥다"})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"command": "에어컨 켜줘"}` {
		t.Errorf("rule mismatch: %s", got)
	}

	got, _ = mock.Complete(context.Background(), Request{User: "관계 없는 질문"})
	if got != "{}" {
		t.Errorf("unmatched prompt should return empty object, got %s", got)
	}
}
