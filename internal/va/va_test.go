package va

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/evalgap/homesim/internal/env"
	"github.com/evalgap/homesim/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnvironment() *env.Environment {
	return &env.Environment{
		Rooms: map[string][]*env.Device{
			"거실": {
				{
					Name: "거실 에어컨",
					Properties: map[string]*env.PropertyState{
						"power":       {Value: "off", Observable: true},
						"temperature": {Value: "24도", Observable: false},
					},
				},
				{
					Name: "거실 조명",
					Properties: map[string]*env.PropertyState{
						"power": {Value: "off", Observable: true},
					},
				},
			},
		},
	}
}

func TestGenerativeExecutor_CommitsProposedChanges(t *testing.T) {
	mock := llm.NewMockClient().WithScript(
		`{"response_text": "네, 거실 에어컨을 켰습니다.",
		  "changes": [{"device_name": "거실 에어컨", "property_name": "power", "before": "off", "after": "on"}],
		  "state_change_description": "거실 에어컨이 켜졌습니다."}`,
	)
	e := testEnvironment()
	x := NewGenerativeExecutor(mock, "gpt-4o-mini", 2, quietLogger())

	result := x.Execute(context.Background(), "거실 에어컨 켜줘", e)
	if result.ResponseText != "네, 거실 에어컨을 켰습니다." {
		t.Errorf("response = %q", result.ResponseText)
	}
	if len(result.Changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(result.Changes))
	}
	if result.Changes[0].Before != "off" || result.Changes[0].After != "on" {
		t.Errorf("change = %+v", result.Changes[0])
	}

	d, _ := e.FindDevice("거실 에어컨")
	if d.Properties["power"].Value != "on" {
		t.Error("executor did not mutate the environment it was handed")
	}
}

func TestGenerativeExecutor_DropsUnknownProperty(t *testing.T) {
	mock := llm.NewMockClient().WithScript(
		`{"response_text": "볼륨을 조절했습니다.",
		  "changes": [
		    {"device_name": "거실 조명", "property_name": "volume", "before": "0", "after": "10"},
		    {"device_name": "거실 조명", "property_name": "power", "before": "off", "after": "on"}
		  ],
		  "state_change_description": ""}`,
	)
	e := testEnvironment()
	x := NewGenerativeExecutor(mock, "gpt-4o-mini", 2, quietLogger())

	result := x.Execute(context.Background(), "조명 볼륨 올려줘", e)
	if result.ResponseText == "" {
		t.Error("response text must survive a dropped change")
	}
	if len(result.Changes) != 1 {
		t.Fatalf("got %d committed changes, want 1 (volume dropped)", len(result.Changes))
	}
	if result.Changes[0].PropertyName != "power" {
		t.Errorf("committed %q, want power", result.Changes[0].PropertyName)
	}
	// Empty description is backfilled from committed changes.
	if !strings.Contains(result.ChangeDescription, "거실 조명.power") {
		t.Errorf("description = %q", result.ChangeDescription)
	}
}

func TestGenerativeExecutor_FailureReturnsApology(t *testing.T) {
	mock := llm.NewMockClient().WithError(errors.New("timeout"))
	e := testEnvironment()
	x := NewGenerativeExecutor(mock, "gpt-4o-mini", 0, quietLogger())

	result := x.Execute(context.Background(), "에어컨 켜줘", e)
	if result.ResponseText != apologyGenerative {
		t.Errorf("response = %q", result.ResponseText)
	}
	if len(result.Changes) != 0 {
		t.Error("failed call must not report changes")
	}
	if result.ChangeDescription != NoObservableChange {
		t.Errorf("description = %q", result.ChangeDescription)
	}

	d, _ := e.FindDevice("거실 에어컨")
	if d.Properties["power"].Value != "off" {
		t.Error("failed call must not mutate the environment")
	}
}

func TestRuleExecutor_NoneClassificationApologizesWithoutSecondCall(t *testing.T) {
	mock := llm.NewMockClient().WithScript(
		`{"domain": "none", "intent": "none", "device_entity": "", "target_value": ""}`,
	)
	e := testEnvironment()
	x := NewRuleExecutor(mock, "gpt-4o-mini", "gpt-4o-mini", 2, quietLogger())

	result := x.Execute(context.Background(), "오늘 저녁 뭐 먹지?", e)
	if result.ResponseText != apologyUnclassified {
		t.Errorf("response = %q", result.ResponseText)
	}
	if len(result.Changes) != 0 {
		t.Error("unclassified utterance must not change state")
	}
	if mock.CallCount() != 1 {
		t.Errorf("made %d calls, want 1 (no response-generation call)", mock.CallCount())
	}
}

func TestRuleExecutor_TwoStagePipeline(t *testing.T) {
	mock := llm.NewMockClient().WithScript(
		`{"domain": "climate", "intent": "turn_on", "device_entity": "거실 에어컨", "target_value": "on"}`,
		`{"response_text": "네, 거실 에어컨을 켰습니다. 현재 설정 온도는 24도입니다.",
		  "changes": [{"device_name": "거실 에어컨", "property_name": "power", "before": "off", "after": "on"}],
		  "state_change_description": "거실 에어컨이 켜졌습니다."}`,
	)
	e := testEnvironment()
	x := NewRuleExecutor(mock, "gpt-4o-mini", "gpt-4o-mini", 2, quietLogger())

	result := x.Execute(context.Background(), "에어컨 켜줘", e)
	if len(result.Changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(result.Changes))
	}
	d, _ := e.FindDevice("거실 에어컨")
	if d.Properties["power"].Value != "on" {
		t.Error("rule executor did not mutate the environment")
	}
	if mock.CallCount() != 2 {
		t.Errorf("made %d calls, want 2", mock.CallCount())
	}
}

func TestRuleExecutor_UnknownComboCollapsesToNone(t *testing.T) {
	// The classifier invents a combo outside the closed label table.
	mock := llm.NewMockClient().WithScript(
		`{"domain": "climate", "intent": "fly", "device_entity": "거실 에어컨", "target_value": ""}`,
	)
	e := testEnvironment()
	x := NewRuleExecutor(mock, "gpt-4o-mini", "gpt-4o-mini", 2, quietLogger())

	result := x.Execute(context.Background(), "에어컨 날려줘", e)
	if result.ResponseText != apologyUnclassified {
		t.Errorf("response = %q", result.ResponseText)
	}
	if mock.CallCount() != 1 {
		t.Errorf("made %d calls, want 1", mock.CallCount())
	}
}

func TestRuleExecutor_ClassifierFailure(t *testing.T) {
	mock := llm.NewMockClient().WithError(errors.New("timeout"))
	e := testEnvironment()
	x := NewRuleExecutor(mock, "gpt-4o-mini", "gpt-4o-mini", 0, quietLogger())

	result := x.Execute(context.Background(), "에어컨 켜줘", e)
	if result.ResponseText != apologyClassifierError {
		t.Errorf("response = %q", result.ResponseText)
	}
	if len(result.Changes) != 0 {
		t.Error("classifier failure must not change state")
	}
}

func TestParseCombos(t *testing.T) {
	combos, err := parseCombos(domainIntentLabelsCSV)
	if err != nil {
		t.Fatalf("embedded label table must parse: %v", err)
	}
	for _, want := range []string{"light_turn_on", "climate_set_temperature", "none_none"} {
		if !combos[want] {
			t.Errorf("missing combo %q", want)
		}
	}
}

func TestDescribeChanges(t *testing.T) {
	if got := describeChanges("", nil); got != NoObservableChange {
		t.Errorf("empty changes description = %q", got)
	}
	changes := []env.StateChange{{DeviceName: "거실 조명", PropertyName: "power", Before: "off", After: "on"}}
	if got := describeChanges("", changes); got != "거실 조명.power: off -> on" {
		t.Errorf("backfilled description = %q", got)
	}
	if got := describeChanges("조명이 켜졌습니다.", changes); got != "조명이 켜졌습니다." {
		t.Errorf("explicit description overridden: %q", got)
	}
}
