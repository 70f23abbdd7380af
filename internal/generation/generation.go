// Package generation wraps the content-generation collaborator behind the
// two narrow contracts the engine depends on: per-slot behavioral context
// and context-stripped command rewriting. Both degrade to deterministic
// fallbacks so the timeline always advances whether the backend is a live
// model or a stub.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evalgap/homesim/internal/llm"
	"github.com/evalgap/homesim/internal/profile"
)

// ActionContext is the structured behavioral context for one slot.
type ActionContext struct {
	// QuarterlyActivity narrows the hourly activity to this 15-minute slot.
	QuarterlyActivity string `json:"quarterly_activity"`
	// Location is the room the member is in.
	Location string `json:"location"`
	// IsAtHome may override the schedule flag for edge activities. A
	// pointer so an omitted field is a schema violation, not silently
	// "away".
	IsAtHome *bool `json:"is_at_home"`
	// ConcreteAction is the latent, intent-bearing description of what the
	// member is actually doing and wanting. Never shown to the observer.
	ConcreteAction string `json:"concrete_action"`
	// ContextCommand is the context-bearing utterance, empty when no voice
	// interaction is warranted.
	ContextCommand string `json:"context_command"`
	// NeedsVoiceCommand is the interaction decision for this slot.
	NeedsVoiceCommand bool `json:"needs_voice_command"`
}

// Validate implements llm.Validator.
func (a *ActionContext) Validate() error {
	if a.QuarterlyActivity == "" {
		return fmt.Errorf("quarterly_activity is empty")
	}
	if a.IsAtHome == nil {
		return fmt.Errorf("is_at_home is missing")
	}
	if a.NeedsVoiceCommand && a.ContextCommand == "" {
		return fmt.Errorf("needs_voice_command without context_command")
	}
	return nil
}

// AtHome reports the context's presence judgement.
func (a *ActionContext) AtHome() bool {
	return a.IsAtHome != nil && *a.IsAtHome
}

type rewriteOutput struct {
	Command string `json:"command"`
}

func (r *rewriteOutput) Validate() error {
	if strings.TrimSpace(r.Command) == "" {
		return fmt.Errorf("command is empty")
	}
	return nil
}

// Generator owns both collaborator contracts.
type Generator struct {
	client       llm.Client
	contextModel string
	rewriteModel string
	maxRetries   int
	log          *slog.Logger
}

// NewGenerator wires a Generator to a completion client.
func NewGenerator(client llm.Client, contextModel, rewriteModel string, maxRetries int, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		client:       client,
		contextModel: contextModel,
		rewriteModel: rewriteModel,
		maxRetries:   maxRetries,
		log:          log,
	}
}

// GenerateContext produces the slot context for a member. It never fails:
// generation errors are logged as warnings and replaced by the deterministic
// keyword fallback, so callers can rely on a usable context at every slot.
func (g *Generator) GenerateContext(ctx context.Context, timeKey, activity string, member profile.MemberProfile, isAtHome bool, memoryDigest string) ActionContext {
	req := llm.Request{
		Model:  g.contextModel,
		System: contextSystemRole,
		User:   contextPrompt(timeKey, activity, member, memoryDigest),
	}

	var out ActionContext
	if err := llm.CompleteJSON(ctx, g.client, req, g.maxRetries, &out); err != nil {
		g.log.Warn("context generation failed, using fallback",
			"member_id", member.ID, "time", timeKey, "error", err)
		return FallbackContext(activity, isAtHome)
	}

	if out.Location == "" {
		out.Location = GuessLocation(activity)
	}
	if out.ConcreteAction == "" {
		out.ConcreteAction = out.QuarterlyActivity
	}
	return out
}

// RewriteWithoutContext strips situational justification from a command
// while preserving the device-control intent. On failure the original
// command is reused, which keeps the matrix comparable.
func (g *Generator) RewriteWithoutContext(ctx context.Context, command, concreteAction string) string {
	req := llm.Request{
		Model:  g.rewriteModel,
		System: rewriteSystemRole,
		User:   rewritePrompt(command, concreteAction),
	}

	var out rewriteOutput
	if err := llm.CompleteJSON(ctx, g.client, req, g.maxRetries, &out); err != nil {
		g.log.Warn("command rewrite failed, reusing original command", "error", err)
		return command
	}
	return out.Command
}

// FallbackContext is the deterministic, content-derived default used when
// context generation fails: the hourly activity stands in for the slot
// activity, the location is keyword-guessed, and no voice interaction is
// attempted.
func FallbackContext(activity string, isAtHome bool) ActionContext {
	return ActionContext{
		QuarterlyActivity: activity,
		Location:          GuessLocation(activity),
		IsAtHome:          &isAtHome,
		ConcreteAction:    activity,
		ContextCommand:    "",
		NeedsVoiceCommand: false,
	}
}

var locationKeywords = []struct {
	keyword  string
	location string
}{
	{"수면", "침실"},
	{"취침", "침실"},
	{"기상", "침실"},
	{"요리", "주방"},
	{"식사", "주방"},
	{"아침 준비", "주방"},
	{"설거지", "주방"},
	{"샤워", "욕실"},
	{"세면", "욕실"},
	{"외출", "집 밖"},
	{"출근", "집 밖"},
	{"외근", "집 밖"},
}

// GuessLocation maps an activity description to the most likely room by
// keyword, defaulting to the living room.
func GuessLocation(activity string) string {
	for _, kw := range locationKeywords {
		if strings.Contains(activity, kw.keyword) {
			return kw.location
		}
	}
	return "거실"
}
