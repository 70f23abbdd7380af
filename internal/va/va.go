// Package va implements the two voice-assistant executors behind one small
// interface: a free-form generative executor and a constrained
// classify-then-template executor. Both interpret a natural-language command
// against whatever environment the caller hands them — canonical or a
// disposable clone; branch selection is the caller's responsibility.
package va

import (
	"context"
	"fmt"
	"strings"

	"github.com/evalgap/homesim/internal/env"
	"github.com/evalgap/homesim/internal/llm"
)

// NoObservableChange is the change description reported when nothing
// observable happened.
const NoObservableChange = "관측 가능한 기기 상태 변화 없음"

// apologyGenerative is returned when the generative executor's call fails.
const apologyGenerative = "죄송합니다. 잠시 시스템 오류가 있어 요청을 처리하지 못했어요."

// apologyUnclassified is returned when the rule executor cannot place the
// utterance in its label table.
const apologyUnclassified = "죄송합니다. 원하시는 의도를 파악하기 어렵거나 현재 지원하지 않는 기능입니다."

// apologyClassifierError is returned when the classifier call itself fails.
const apologyClassifierError = "죄송합니다. 오류가 발생하여 다시 말씀해 주시겠어요?"

// Result is the outcome of one executor call. Changes holds only the
// committed state changes; proposals that named unknown devices or
// properties are dropped silently from the result.
type Result struct {
	ResponseText      string
	Changes           []env.StateChange
	ChangeDescription string
}

// Executor is the closed interface both VA implementations satisfy.
type Executor interface {
	// Name identifies the implementation in logs and matrix cells.
	Name() string

	// Execute interprets command against e, mutating e for committed
	// changes. It never fails the run: generation errors degrade to a
	// polite failure response with no changes.
	Execute(ctx context.Context, command string, e *env.Environment) *Result
}

// vaResponse is the declared output schema shared by both executors'
// change-producing generation calls.
type vaResponse struct {
	ResponseText           string            `json:"response_text"`
	Changes                []env.StateChange `json:"changes"`
	StateChangeDescription string            `json:"state_change_description"`
}

func (r *vaResponse) Validate() error {
	if strings.TrimSpace(r.ResponseText) == "" {
		return fmt.Errorf("response_text is empty")
	}
	return nil
}

var _ llm.Validator = (*vaResponse)(nil)

// applyProposed passes every proposed change through env.Apply and returns
// the committed subset with actual before values.
func applyProposed(e *env.Environment, proposed []env.StateChange) []env.StateChange {
	committed := make([]env.StateChange, 0, len(proposed))
	for _, change := range proposed {
		applied, ok := e.Apply(change)
		if !ok {
			continue
		}
		committed = append(committed, applied)
	}
	return committed
}

// describeChanges backfills a change description from committed changes when
// the generation call left it empty.
func describeChanges(description string, committed []env.StateChange) string {
	if description != "" {
		return description
	}
	if len(committed) == 0 {
		return NoObservableChange
	}
	parts := make([]string, 0, len(committed))
	for _, c := range committed {
		parts = append(parts, fmt.Sprintf("%s.%s: %s -> %s", c.DeviceName, c.PropertyName, c.Before, c.After))
	}
	return strings.Join(parts, "; ")
}
