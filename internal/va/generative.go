package va

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evalgap/homesim/internal/env"
	"github.com/evalgap/homesim/internal/llm"
)

// GenerativeExecutor delegates interpretation of the free-form command to a
// single generation call constrained to the vaResponse schema.
type GenerativeExecutor struct {
	client     llm.Client
	model      string
	maxRetries int
	log        *slog.Logger
}

// NewGenerativeExecutor wires the executor to a completion client.
func NewGenerativeExecutor(client llm.Client, model string, maxRetries int, log *slog.Logger) *GenerativeExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &GenerativeExecutor{client: client, model: model, maxRetries: maxRetries, log: log}
}

// Name implements Executor.
func (x *GenerativeExecutor) Name() string { return "va_c" }

// Execute implements Executor. Any generation failure returns a polite
// apology with zero changes rather than propagating the error.
func (x *GenerativeExecutor) Execute(ctx context.Context, command string, e *env.Environment) *Result {
	req := llm.Request{
		Model:  x.model,
		System: "당신은 스마트홈 AI 비서입니다. 현재 집안의 가용 기기 상태를 보고 사용자의 명령을 수행하세요.",
		User:   generativePrompt(command, e),
	}

	var resp vaResponse
	if err := llm.CompleteJSON(ctx, x.client, req, x.maxRetries, &resp); err != nil {
		x.log.Warn("generative executor call failed", "command", command, "error", err)
		return &Result{
			ResponseText:      apologyGenerative,
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

func generativePrompt(command string, e *env.Environment) string {
	return fmt.Sprintf(`[사용 가능한 기기 목록]
%s

[현재 집안 환경 및 기기 상태]
%s

[사용자 명령]
"%s"

[지시사항]
1. 사용자의 명령을 해석하여 적절한 기기를 찾고 상태를 변경하세요.
2. 명령이 모호하면 되묻거나, 가장 적절한 기기를 추론하여 실행하세요.
3. 실행할 수 없는 명령이면 정중히 거절하세요.
4. 중요: 상태 변경 시 device_name과 property_name은 위 기기 목록에 있는 정확한 값을 써야 합니다.
5. 응답(response_text)은 한국어로 친절하고 자연스럽게 작성하세요.
6. state_change_description은 기기들이 어떻게 조작되었는지 하나의 자연스러운 한국어 문장으로 요약하세요. 상태 변경이 없으면 빈 문자열.

[출력 포맷 예시]
반드시 아래와 같은 JSON 구조로만 출력하세요.

{
  "response_text": "네, 거실 조명을 켰습니다.",
  "changes": [
    {
      "device_name": "거실 조명",
      "property_name": "power",
      "before": "off",
      "after": "on"
    }
  ],
  "state_change_description": "거실 조명이 켜졌습니다."
}

만약 상태 변경이 없다면 "changes": [] 로 비워두세요.`, e.AllowlistText(), e.StateJSON(), command)
}
