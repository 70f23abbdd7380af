// Package engine orchestrates one family's simulation run: it walks the
// merged timeline event by event, drives the context and rewrite steps,
// runs the four-cell interaction matrix with branch isolation, and flushes
// the interaction log after every event.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/evalgap/homesim/internal/config"
	"github.com/evalgap/homesim/internal/env"
	"github.com/evalgap/homesim/internal/evaluation"
	"github.com/evalgap/homesim/internal/generation"
	"github.com/evalgap/homesim/internal/llm"
	"github.com/evalgap/homesim/internal/logging"
	"github.com/evalgap/homesim/internal/memory"
	"github.com/evalgap/homesim/internal/profile"
	"github.com/evalgap/homesim/internal/simlog"
	"github.com/evalgap/homesim/internal/timeline"
	"github.com/evalgap/homesim/internal/va"
)

// sleepKeywords flag hourly activities during which a member cannot speak.
// The context step can still override via its own is_at_home judgement, but
// sleep is decided here before any generation call is spent.
var sleepKeywords = []string{"수면", "취침", "잠"}

func isAsleep(activity string) bool {
	for _, kw := range sleepKeywords {
		if strings.Contains(activity, kw) {
			return true
		}
	}
	return false
}

// Engine owns the canonical environment and the memory store for one run.
// It is strictly sequential: one event is fully processed before the next.
type Engine struct {
	cfg    *config.Config
	log    *slog.Logger
	trace  *logging.RunTrace
	env    *env.Environment
	family *profile.FamilyProfile
	r      profile.DayRange

	gen      *generation.Generator
	vaGen    va.Executor
	vaRule   va.Executor
	selfEval *evaluation.SelfEvaluator
	mem      *memory.Store
	store    *simlog.Store

	membersByID map[string]profile.MemberProfile
	// atHomeByHour maps member id -> hour key -> scheduled presence, for
	// the shared-memory fan-out at each slot.
	atHomeByHour map[string]map[string]bool
}

// New loads the input files, validates them, and wires all collaborators.
// Input errors are fatal: nothing is written before both files validate.
func New(cfg *config.Config, client llm.Client, log *slog.Logger, trace *logging.RunTrace) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	e, err := env.Load(cfg.Paths.Environment)
	if err != nil {
		return nil, err
	}
	family, err := profile.Load(cfg.Paths.FamilyProfile)
	if err != nil {
		return nil, err
	}
	r, err := profile.ParseDayRange(cfg.Simulation.StartDay, cfg.Simulation.BaseYear, cfg.Simulation.Days)
	if err != nil {
		return nil, err
	}
	family.Normalize(r)

	store, err := simlog.Open(cfg.SimulationLogPath())
	if err != nil {
		return nil, err
	}
	if n := len(store.LoadErrors); n > 0 {
		log.Warn("dropped unparsable log entries on resume", "dropped", n, "path", cfg.SimulationLogPath())
	}
	if n := cfg.Simulation.BackupEveryN; n > 0 {
		store.SetBackupEvery(n, filepath.Join(cfg.Paths.LogDir, "backups"))
	}

	membersByID := make(map[string]profile.MemberProfile, len(family.Members))
	atHomeByHour := make(map[string]map[string]bool, len(family.Members))
	for _, m := range family.Members {
		membersByID[m.ID] = m
		hours := make(map[string]bool, len(m.Schedule))
		for _, slot := range m.Schedule {
			hours[slot.Time] = slot.IsAtHome
		}
		atHomeByHour[m.ID] = hours
	}

	retries := cfg.LLM.MaxRetries
	return &Engine{
		cfg:          cfg,
		log:          log,
		trace:        trace,
		env:          e,
		family:       family,
		r:            r,
		gen:          generation.NewGenerator(client, cfg.Models.Context, cfg.Models.Rewrite, retries, log),
		vaGen:        va.NewGenerativeExecutor(client, cfg.Models.VAGenerative, retries, log),
		vaRule:       va.NewRuleExecutor(client, cfg.Models.VARClassifier, cfg.Models.VARResponse, retries, log),
		selfEval:     evaluation.NewSelfEvaluator(client, cfg.Models.SelfEval, retries, log),
		mem:          memory.NewStore(cfg.Memory.DecayPerHour, cfg.Memory.Floor, cfg.Memory.TopK),
		store:        store,
		membersByID:  membersByID,
		atHomeByHour: atHomeByHour,
	}, nil
}

// Store exposes the run's log store, mainly for inspection after Run.
func (e *Engine) Store() *simlog.Store { return e.store }

// Memory exposes the run's memory store.
func (e *Engine) Memory() *memory.Store { return e.mem }

// Run processes the whole merged timeline. Memory decays once per
// hour-boundary crossing of the merged stream, never per sub-slot. Events
// already present in the log (a resumed run) are skipped without spending
// generation calls. The flattened memory history is written at the end.
func (e *Engine) Run(ctx context.Context) error {
	events := timeline.Build(e.family, e.r, e.cfg.Simulation.StepMinutes)
	e.log.Info("simulation starting",
		"run", e.cfg.Run.Name,
		"members", len(e.family.Members),
		"events", len(events),
		"resumed", e.store.Len())

	lastHour := ""
	for _, ev := range events {
		if lastHour != "" && ev.HourKey != lastHour {
			e.mem.Decay()
		}
		lastHour = ev.HourKey

		if e.store.HasSlot(ev.TimeKey, ev.MemberID) {
			continue
		}

		entry := e.processEvent(ctx, ev)
		if err := e.store.Append(entry); err != nil {
			return fmt.Errorf("flushing log after %s/%s: %w", ev.TimeKey, ev.MemberID, err)
		}
	}

	if err := e.mem.WriteHistory(e.cfg.MemoryHistoryPath()); err != nil {
		return err
	}
	e.log.Info("simulation finished", "run", e.cfg.Run.Name, "records", e.store.Len())
	return nil
}

// processEvent walks one event through the per-slot state machine:
// away check, sleep check, context generation, interaction gate, matrix.
func (e *Engine) processEvent(ctx context.Context, ev timeline.Event) *simlog.InteractionLog {
	entry := &simlog.InteractionLog{
		Time:       ev.TimeKey,
		MemberID:   ev.MemberID,
		MemberName: ev.MemberName,
		Activity:   ev.Activity,
		IsAtHome:   ev.IsAtHome,
	}

	if !ev.IsAtHome {
		entry.Status = simlog.StatusSkippedAway
		entry.Location = "집 밖"
		e.mem.Add(ev.TimeKey, ev.MemberID, memory.LogTypeAction, "외출 중: "+ev.Activity)
		e.log.Info("skip", "time", ev.TimeKey, "member", ev.MemberName, "reason", "away", "activity", ev.Activity)
		return entry
	}

	if isAsleep(ev.Activity) {
		entry.Status = simlog.StatusSkippedSleep
		entry.Location = generation.GuessLocation(ev.Activity)
		entry.QuarterlyActivity = ev.Activity
		e.mem.Add(ev.TimeKey, ev.MemberID, memory.LogTypeAction, "수면 중")
		e.log.Info("skip", "time", ev.TimeKey, "member", ev.MemberName, "reason", "sleep")
		return entry
	}

	member := e.membersByID[ev.MemberID]
	actx := e.gen.GenerateContext(ctx, ev.TimeKey, ev.Activity, member, ev.IsAtHome, e.mem.ContextFor(ev.MemberID))
	entry.Location = actx.Location
	entry.QuarterlyActivity = actx.QuarterlyActivity

	// The context step may conclude the member slipped out mid-hour.
	if !actx.AtHome() {
		entry.Status = simlog.StatusSkippedAway
		entry.IsAtHome = false
		e.mem.Add(ev.TimeKey, ev.MemberID, memory.LogTypeAction, "외출 중: "+actx.QuarterlyActivity)
		e.log.Info("skip", "time", ev.TimeKey, "member", ev.MemberName, "reason", "away", "activity", actx.QuarterlyActivity)
		return entry
	}

	if !actx.NeedsVoiceCommand {
		entry.Status = simlog.StatusSkippedNoCommand
		e.mem.Add(ev.TimeKey, ev.MemberID, memory.LogTypeAction, actx.QuarterlyActivity)
		e.log.Info("skip", "time", ev.TimeKey, "member", ev.MemberName, "reason", "no command needed", "activity", actx.QuarterlyActivity)
		return entry
	}

	e.runMatrix(ctx, ev, actx, entry)
	entry.Status = simlog.StatusMatrixExecuted
	e.log.Info("act", "time", ev.TimeKey, "member", ev.MemberName, "command", entry.SeedCommand)
	return entry
}

// runMatrix executes the four (context x executor) cells. The clones are
// snapshotted BEFORE the canonical branch mutates the live environment, so
// all four cells observe identical starting state.
func (e *Engine) runMatrix(ctx context.Context, ev timeline.Event, actx generation.ActionContext, entry *simlog.InteractionLog) {
	command := actx.ContextCommand
	stripped := e.gen.RewriteWithoutContext(ctx, command, actx.ConcreteAction)
	entry.SeedCommand = command

	cloneWCVAR := e.env.Clone()
	cloneWOCVAC := e.env.Clone()
	cloneWOCVAR := e.env.Clone()

	entry.WCVAC = e.runCell(ctx, actx, command, e.vaGen, e.env)
	entry.WCVAR = e.runCell(ctx, actx, command, e.vaRule, cloneWCVAR)
	entry.WOCVAC = e.runCell(ctx, actx, stripped, e.vaGen, cloneWOCVAC)
	entry.WOCVAR = e.runCell(ctx, actx, stripped, e.vaRule, cloneWOCVAR)

	e.trace.Log(map[string]any{
		"event":    "matrix",
		"time":     ev.TimeKey,
		"member":   ev.MemberID,
		"command":  command,
		"stripped": stripped,
	})

	e.mem.AddShared(ev.TimeKey, memory.LogTypeInteraction,
		fmt.Sprintf("%s: \"%s\" -> VA: \"%s\"", ev.MemberName, command, entry.WCVAC.VAResponse),
		e.presentMembers(ev.HourKey))
}

func (e *Engine) runCell(ctx context.Context, actx generation.ActionContext, command string, x va.Executor, target *env.Environment) *simlog.InteractionResult {
	result := x.Execute(ctx, command, target)
	rating, reason := e.selfEval.Evaluate(ctx, actx.ConcreteAction, command, result.ResponseText, formatChanges(result.Changes))
	return &simlog.InteractionResult{
		Command:           command,
		VAResponse:        result.ResponseText,
		StateChanges:      result.Changes,
		ChangeDescription: result.ChangeDescription,
		SelfRating:        rating,
		SelfReason:        reason,
	}
}

// presentMembers lists the members scheduled to be home during hourKey,
// which is who a spoken interaction is audible to.
func (e *Engine) presentMembers(hourKey string) []string {
	present := make([]string, 0, len(e.family.Members))
	for _, m := range e.family.Members {
		if e.atHomeByHour[m.ID][hourKey] {
			present = append(present, m.ID)
		}
	}
	return present
}

func formatChanges(changes []env.StateChange) string {
	if len(changes) == 0 {
		return "변화 없음"
	}
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s.%s: %s -> %s", c.DeviceName, c.PropertyName, c.Before, c.After))
	}
	return strings.Join(parts, "; ")
}
