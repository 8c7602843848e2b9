// Package turn implements TurnEngine (spec §4.2): the two-phase
// claim+context / validate+apply+commit orchestration, ported from
// original_source/src/text_game_engine/core/engine.py::GameEngine.
package turn

import (
	"context"
	"log/slog"

	"github.com/arcfable/campaignforge/internal/clock"
	"github.com/arcfable/campaignforge/internal/uow"
	"github.com/arcfable/campaignforge/ports"
)

// DefaultMaxConflictRetries is spec §9's max_conflict_retries default.
const DefaultMaxConflictRetries = 1

// Config carries the engine's four configuration knobs (spec §9: "The
// engine has four configuration knobs — lease_ttl_seconds, max_conflict_
// retries, clock(), uow_factory(). All other behavior is determined by the
// data.").
type Config struct {
	UOWFactory         uow.Factory
	Clock              clock.Clock
	LeaseTTLSeconds    int
	MaxConflictRetries int
	// Interrupter cancels a campaign's in-memory armed timer countdown when
	// Phase C cancels its persisted row on interruption (spec §4.5
	// "Interruption"). Implemented by internal/timer.Scheduler; declared as
	// a narrow interface here, not a direct dependency, since
	// internal/timer already depends on this package for TurnEngine itself.
	// Nil is valid — interruption still cancels the persisted row, it just
	// leaves any in-memory countdown to expire into a race-guarded no-op.
	Interrupter TimerInterrupter
}

// TimerInterrupter is the subset of timer.Scheduler Phase C needs to cancel
// an in-memory countdown on interruption.
type TimerInterrupter interface {
	CancelTimer(campaignID string)
}

// Engine is TurnEngine: two-phase resolve-turn orchestration over an
// injected LLMPort and ActorResolverPort.
type Engine struct {
	cfg      Config
	llm      ports.LLMPort
	resolver ports.ActorResolverPort
}

func New(cfg Config, llm ports.LLMPort, resolver ports.ActorResolverPort) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.LeaseTTLSeconds <= 0 {
		cfg.LeaseTTLSeconds = 90
	}
	if cfg.MaxConflictRetries < 0 {
		cfg.MaxConflictRetries = DefaultMaxConflictRetries
	}
	return &Engine{cfg: cfg, llm: llm, resolver: resolver}
}

// SetInterrupter wires the timer scheduler in after construction, since the
// scheduler itself is constructed from the engine (cmd/campaignforge/main.go
// wires Engine -> Scheduler -> back into Engine to break the cycle).
func (e *Engine) SetInterrupter(i TimerInterrupter) {
	e.cfg.Interrupter = i
}

// ResolveTurn runs the two-phase protocol described at spec §4.2, retrying
// on StaleClaim up to cfg.MaxConflictRetries times with a fresh token each
// attempt, and never retrying on TurnBusy. beforePhaseC, if non-nil, is
// invoked immediately before Phase C opens its transaction — the test seam
// spec §8 scenarios (a)/(b) use to inject a concurrent row_version bump.
func (e *Engine) ResolveTurn(ctx context.Context, input ResolveTurnInput, beforePhaseC BeforePhaseCHook) ResolveTurnResult {
	attempts := e.cfg.MaxConflictRetries + 1
	var lastReason Reason
	log := slog.With("campaign_id", input.CampaignID, "actor_id", input.ActorID)

	for attempt := 0; attempt < attempts; attempt++ {
		phaseAOut, err := e.phaseA(ctx, input)
		if err != nil {
			if reason, ok := asTurnBusy(err); ok {
				log.Warn("turn busy", "reason", reason)
				return ResolveTurnResult{Status: StatusBusy, ConflictReason: reason}
			}
			log.Error("phase A failed", "error", err)
			return ResolveTurnResult{Status: StatusError, ErrorReason: err.Error()}
		}
		log = log.With("claim_token", phaseAOut.claimToken)

		llmOutput, llmErr := e.llm.CompleteTurn(ctx, phaseAOut.context)
		if llmErr != nil {
			log.Error("LLM turn completion failed", "error", llmErr)
			e.releaseBestEffort(ctx, phaseAOut)
			return ResolveTurnResult{Status: StatusError, ErrorReason: llmErr.Error()}
		}

		if beforePhaseC != nil {
			beforePhaseC(ctx)
		}

		result, err := e.phaseC(ctx, input, phaseAOut, llmOutput)
		if err == nil {
			log.Info("turn resolved", "turn_id", result.NarratorTurnID, "attempt", attempt+1)
			return result
		}

		if reason, ok := asStaleClaim(err); ok {
			lastReason = reason
			log.Warn("stale claim, retrying", "reason", reason, "attempt", attempt+1)
			continue // retry with a fresh claim token, per spec §4.2 "Retry policy"
		}

		log.Error("phase C failed", "error", err)
		return ResolveTurnResult{Status: StatusError, ErrorReason: err.Error()}
	}

	log.Warn("conflict retries exhausted", "reason", lastReason, "attempts", attempts)
	return ResolveTurnResult{Status: StatusConflict, ConflictReason: lastReason}
}

func (e *Engine) releaseBestEffort(ctx context.Context, out phaseAOutput) {
	_ = uow.Run(ctx, e.cfg.UOWFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		_ = u.Inflight().Release(ctx, out.campaignID, out.actorID, out.claimToken)
		return nil
	})
}
