package va

import (
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evalgap/homesim/internal/env"
	"github.com/evalgap/homesim/internal/llm"
)

//go:embed assets/domain_intent_labels.csv
var domainIntentLabelsCSV string

// degenerateLabels stands in when the embedded table is ever emptied; the
// executor then classifies everything as unsupported instead of crashing.
const degenerateLabels = "domain,intent,description\nnone,none,해당 없음"

// classification is the closed (domain, intent, entity, value) tuple the
// first stage produces.
type classification struct {
	Domain       string `json:"domain"`
	Intent       string `json:"intent"`
	DeviceEntity string `json:"device_entity"`
	TargetValue  string `json:"target_value"`
}

func (c *classification) Validate() error {
	if c.Domain == "" || c.Intent == "" {
		return fmt.Errorf("domain/intent missing")
	}
	return nil
}

// RuleExecutor is the constrained two-stage pipeline: a classifier maps the
// utterance onto a fixed label table, then an intent-specific guideline
// steers the response-generation call. Unclassifiable utterances get a fixed
// apology and no second call.
type RuleExecutor struct {
	client          llm.Client
	classifierModel string
	responseModel   string
	maxRetries      int
	log             *slog.Logger

	labelsCSV   string
	validCombos map[string]bool // "domain_intent"
}

// NewRuleExecutor wires the executor and parses the embedded label table.
func NewRuleExecutor(client llm.Client, classifierModel, responseModel string, maxRetries int, log *slog.Logger) *RuleExecutor {
	if log == nil {
		log = slog.Default()
	}

	labels := domainIntentLabelsCSV
	combos, err := parseCombos(labels)
	if err != nil || len(combos) == 0 {
		if log != nil {
			log.Warn("domain/intent label table unusable, using degenerate table", "error", err)
		}
		labels = degenerateLabels
		combos = map[string]bool{"none_none": true}
	}

	return &RuleExecutor{
		client:          client,
		classifierModel: classifierModel,
		responseModel:   responseModel,
		maxRetries:      maxRetries,
		log:             log,
		labelsCSV:       labels,
		validCombos:     combos,
	}
}

func parseCombos(labels string) (map[string]bool, error) {
	reader := csv.NewReader(strings.NewReader(labels))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing label table: %w", err)
	}
	combos := make(map[string]bool)
	for i, rec := range records {
		if i == 0 || len(rec) < 2 {
			continue // header
		}
		combos[rec[0]+"_"+rec[1]] = true
	}
	return combos, nil
}

// Name implements Executor.
func (x *RuleExecutor) Name() string { return "va_r" }

// Execute implements Executor.
func (x *RuleExecutor) Execute(ctx context.Context, command string, e *env.Environment) *Result {
	class, err := x.classify(ctx, command, e)
	if err != nil {
		x.log.Warn("rule executor classification failed", "command", command, "error", err)
		return &Result{
			ResponseText:      apologyClassifierError,
			Changes:           []env.StateChange{},
			ChangeDescription: NoObservableChange,
		}
	}

	// Combos outside the label table collapse to none/none: the table is
	// closed, the classifier is not.
	comboKey := class.Domain + "_" + class.Intent
	if !x.validCombos[comboKey] {
		class.Domain, class.Intent = "none", "none"
	}

	if class.Domain == "none" || class.Intent == "none" {
		return &Result{
			ResponseText:      apologyUnclassified,
			Changes:           []env.StateChange{},
			ChangeDescription: NoObservableChange,
		}
	}

	resp, err := x.respond(ctx, command, class, e)
	if err != nil {
		x.log.Warn("rule executor response generation failed", "command", command, "error", err)
		return &Result{
			ResponseText:      "네, 명령수행 중 오류가 발생했습니다.",
			Changes:           []env.StateChange{},
			ChangeDescription: NoObservableChange,
		}
	}

	committed := applyProposed(e, resp.Changes)
	return &Result{
		ResponseText:      resp.ResponseText,
		Changes:           committed,
		ChangeDescription: describeChanges(resp.StateChangeDescription, committed),
	}
}

func (x *RuleExecutor) classify(ctx context.Context, command string, e *env.Environment) (*classification, error) {
	req := llm.Request{
		Model:  x.classifierModel,
		System: "당신은 스마트홈 자유발화에서 도메인과 인텐트, 엔티티를 추출하는 NLU 분류기입니다.",
		User:   classifierPrompt(x.labelsCSV, command, e),
	}

	var out classification
	if err := llm.CompleteJSON(ctx, x.client, req, x.maxRetries, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (x *RuleExecutor) respond(ctx context.Context, command string, class *classification, e *env.Environment) (*vaResponse, error) {
	guideline, ok := responseGuidelines[class.Domain+"_"+class.Intent]
	if !ok {
		guideline = "정해진 가이드라인이 없습니다. 결과에 기반해 간결하게 사실만 응답하세요."
	}

	req := llm.Request{
		Model:  x.responseModel,
		System: "당신은 스마트홈의 친절한 음성 비서 역할로서 시스템 응답과 기기 상태 변화 내역을 생성합니다.",
		User:   responsePrompt(command, class, guideline, e),
	}

	var out vaResponse
	if err := llm.CompleteJSON(ctx, x.client, req, x.maxRetries, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func classifierPrompt(labelsCSV, command string, e *env.Environment) string {
	devices := strings.Join(e.DeviceList(), ", ")
	if devices == "" {
		devices = "기기 없음"
	}
	return fmt.Sprintf(`[도메인/인텐트 정의표]
%s

[집안 기기 목록]
%s

[사용자 발화]
"%s"

위 정의표에 있는 조합만 사용하여 발화를 분류하세요. 해당하는 조합이 없으면 domain과 intent를 "none"으로 출력하세요.
device_entity는 기기 목록에서 가장 가까운 기기 이름, target_value는 설정하려는 값(없으면 빈 문자열)입니다.
반드시 JSON만 출력하세요.

출력 형식:
{
  "domain": "...",
  "intent": "...",
  "device_entity": "...",
  "target_value": "..."
}`, labelsCSV, devices, command)
}

func responsePrompt(command string, class *classification, guideline string, e *env.Environment) string {
	return fmt.Sprintf(`[분류 결과]
- domain: %s
- intent: %s
- device_entity: %s
- target_value: %s

[사용 가능한 기기 목록]
%s

[현재 집안 환경 및 기기 상태]
%s

[응답 가이드라인]
%s

[사용자 명령]
"%s"

분류 결과에 따라 기기 상태 변화와 음성 응답을 생성하세요.
상태 변경 시 device_name과 property_name은 위 기기 목록에 있는 정확한 값을 써야 합니다.
state_change_description은 기기들이 어떻게 조작되었는지 하나의 자연스러운 한국어 문장으로 요약하세요. 상태 변경이 없으면 빈 문자열.
반드시 JSON만 출력하세요.

출력 형식:
{
  "response_text": "...",
  "changes": [
    {"device_name": "...", "property_name": "...", "before": "...", "after": "..."}
  ],
  "state_change_description": "..."
}`, class.Domain, class.Intent, class.DeviceEntity, class.TargetValue,
		e.AllowlistText(), e.StateJSON(), guideline, command)
}

// responseGuidelines fixes the register of the second-stage response per
// label-table combo.
var responseGuidelines = map[string]string{
	"light_turn_on":           "조명을 켠 사실만 간결하게 확인해 주세요. 예: \"네, OO 조명을 켰습니다.\"",
	"light_turn_off":          "조명을 끈 사실만 간결하게 확인해 주세요.",
	"light_set_brightness":    "설정된 밝기 값을 포함해 확인해 주세요.",
	"climate_turn_on":         "냉난방 기기를 켠 사실과 현재 설정 온도를 알려 주세요.",
	"climate_turn_off":        "냉난방 기기를 끈 사실만 확인해 주세요.",
	"climate_set_temperature": "변경된 목표 온도를 포함해 확인해 주세요.",
	"media_turn_on":           "기기를 켠 사실만 확인해 주세요.",
	"media_turn_off":          "기기를 끈 사실만 확인해 주세요.",
	"media_set_volume":        "변경된 볼륨 값을 포함해 확인해 주세요.",
	"appliance_turn_on":       "가전 기기를 켠 사실만 확인해 주세요.",
	"appliance_turn_off":      "가전 기기를 끈 사실만 확인해 주세요.",
	"appliance_start":         "동작을 시작했다는 사실만 확인해 주세요.",
	"query_state":             "요청된 기기의 현재 상태를 사실대로 알려 주세요. 상태 변경은 하지 마세요.",
}
