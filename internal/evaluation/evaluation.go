// Package evaluation rates interactions on a 1-7 scale from two
// perspectives: the member who issued the command (with access to their
// latent context) and a third-party observer who sees only observable
// device changes and the dialogue text.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evalgap/homesim/internal/env"
	"github.com/evalgap/homesim/internal/llm"
	"github.com/evalgap/homesim/internal/simlog"
)

// NoVisibleChange is the observer-facing sentinel for interactions whose
// committed changes were all hidden properties.
const NoVisibleChange = "관측 가능한 변화 없음"

const (
	fallbackRating         = 4
	fallbackSelfReason     = "응답이 무난함"
	fallbackObserverReason = "대화만으로 볼 때 적절함"
)

type ratingResponse struct {
	Rating int    `json:"rating"`
	Reason string `json:"reason"`
}

func (r *ratingResponse) Validate() error {
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("reason is empty")
	}
	return nil
}

var _ llm.Validator = (*ratingResponse)(nil)

func clampRating(r int) int {
	if r < 1 {
		return 1
	}
	if r > 7 {
		return 7
	}
	return r
}

// DescribeChange renders one committed change as an observer would notice
// it. Power changes read as the device turning on or off; numeric
// properties read as the value they reached.
func DescribeChange(c env.StateChange) string {
	switch c.PropertyName {
	case "power":
		switch c.After {
		case "on":
			return fmt.Sprintf("%s가 켜졌다", c.DeviceName)
		case "off":
			return fmt.Sprintf("%s가 꺼졌다", c.DeviceName)
		}
	case "temperature":
		return fmt.Sprintf("%s의 온도가 %s로 바뀌었다", c.DeviceName, c.After)
	case "brightness":
		return fmt.Sprintf("%s의 밝기가 %s로 바뀌었다", c.DeviceName, c.After)
	case "volume":
		return fmt.Sprintf("%s의 볼륨이 %s로 바뀌었다", c.DeviceName, c.After)
	}
	return fmt.Sprintf("%s의 %s이(가) %s로 바뀌었다", c.DeviceName, c.PropertyName, c.After)
}

// ObservableChangeText renders the observable subset of changes for the
// observer prompt. Hidden properties, and devices absent from the index,
// are filtered out.
func ObservableChangeText(changes []env.StateChange, index map[string]map[string]bool) string {
	visible := make([]string, 0, len(changes))
	for _, c := range changes {
		if index[c.DeviceName][c.PropertyName] {
			visible = append(visible, DescribeChange(c))
		}
	}
	if len(visible) == 0 {
		return NoVisibleChange
	}
	return strings.Join(visible, "; ")
}

// SelfEvaluator rates an interaction from the member's own perspective,
// using the latent context the observer never sees.
type SelfEvaluator struct {
	client     llm.Client
	model      string
	maxRetries int
	log        *slog.Logger
}

func NewSelfEvaluator(client llm.Client, model string, maxRetries int, log *slog.Logger) *SelfEvaluator {
	if log == nil {
		log = slog.Default()
	}
	return &SelfEvaluator{client: client, model: model, maxRetries: maxRetries, log: log}
}

// Evaluate returns a clamped 1-7 rating and a reason. Generation failures
// degrade to a neutral rating so the run never stalls on an evaluation.
func (s *SelfEvaluator) Evaluate(ctx context.Context, hiddenContext, command, response, changeText string) (int, string) {
	req := llm.Request{
		Model:  s.model,
		System: "당신은 사용자 입장에서 만족도를 평가합니다. 반드시 JSON만 출력하세요.",
		User:   selfPrompt(hiddenContext, command, response, changeText),
	}

	var out ratingResponse
	if err := llm.CompleteJSON(ctx, s.client, req, s.maxRetries, &out); err != nil {
		s.log.Warn("self evaluation failed, using neutral rating", "command", command, "error", err)
		return fallbackRating, fallbackSelfReason
	}
	return clampRating(out.Rating), out.Reason
}

// ObserverEvaluator rates an interaction as a detached third party. It is
// only ever given observable change text and the dialogue, never the
// member's latent intent.
type ObserverEvaluator struct {
	client     llm.Client
	model      string
	maxRetries int
	log        *slog.Logger
}

func NewObserverEvaluator(client llm.Client, model string, maxRetries int, log *slog.Logger) *ObserverEvaluator {
	if log == nil {
		log = slog.Default()
	}
	return &ObserverEvaluator{client: client, model: model, maxRetries: maxRetries, log: log}
}

func (o *ObserverEvaluator) Evaluate(ctx context.Context, observableText, command, response string) (int, string) {
	req := llm.Request{
		Model:  o.model,
		System: "당신은 관찰자 관점에서 평가합니다. 반드시 JSON만 출력하세요.",
		User:   observerPrompt(observableText, command, response),
	}

	var out ratingResponse
	if err := llm.CompleteJSON(ctx, o.client, req, o.maxRetries, &out); err != nil {
		o.log.Warn("observer evaluation failed, using neutral rating", "command", command, "error", err)
		return fallbackRating, fallbackObserverReason
	}
	return clampRating(out.Rating), out.Reason
}

// RunObserverPass streams existing interaction records, rates every filled
// matrix cell from the observer's perspective, and appends the annotated
// record to out after each one. Records already present in out (a resumed
// pass) are skipped.
func RunObserverPass(ctx context.Context, entries []*simlog.InteractionLog, out *simlog.Store, index map[string]map[string]bool, observer *ObserverEvaluator, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	for _, entry := range entries {
		if out.HasSlot(entry.Time, entry.MemberID) {
			continue
		}

		for _, cell := range entry.Cells() {
			text := ObservableChangeText(cell.Result.StateChanges, index)
			rating, reason := observer.Evaluate(ctx, text, cell.Result.Command, cell.Result.VAResponse)
			r := rating
			cell.Result.ObserverRating = &r
			cell.Result.ObserverReason = reason
		}

		if err := out.Append(entry); err != nil {
			return fmt.Errorf("writing evaluated record %s/%s: %w", entry.Time, entry.MemberID, err)
		}
		log.Debug("observer evaluated", "time", entry.Time, "member", entry.MemberID, "cells", len(entry.Cells()))
	}
	return nil
}

func selfPrompt(hiddenContext, command, response, changeText string) string {
	if changeText == "" {
		changeText = "기기 변화 없음"
	}
	return fmt.Sprintf(`[상황] 속마음: %s
[결과] 기기 변화: %s
[대화] 나: "%s" / VA: "%s"

위 정보를 종합할 때, 본 대화는 얼마나 만족스러웠습니까? (1-7점)
반드시 JSON만 출력하세요.

출력 형식:
{
  "rating": 1,
  "reason": "이유"
}`, hiddenContext, changeText, command, response)
}

func observerPrompt(observableText, command, response string) string {
	return fmt.Sprintf(`[관찰 데이터]
- 관측된 결과: %s
- 대화: 사용자="%s" / VA="%s"

CCTV로 지켜보는 제 3자 입장에서, 이 상호작용이 얼마나 만족스러워 보입니까? (1-7점)
반드시 JSON만 출력하세요.

출력 형식:
{
  "rating": 1,
  "reason": "이유"
}`, observableText, command, response)
}
