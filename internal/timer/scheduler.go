// Package timer implements TimerScheduler (spec §4.5): in-memory countdown
// tasks bound to persisted Timer rows, grounded on tarsy's
// pkg/queue/worker.go (run-loop shape) and pkg/queue/pool.go (session
// registry / cancel-func pattern, generalized here to one timer per
// campaign).
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcfable/campaignforge/internal/clock"
	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/turn"
	"github.com/arcfable/campaignforge/internal/uow"
)

const (
	minEffectiveDelay    = 15 * time.Second
	maxEffectiveDelay    = 300 * time.Second
	playerTurnRaceWindow = 5 * time.Second
)

// engineFirer is the TurnEngine surface fire uses: ResolveTurn for a
// timer-driven system turn, with record_player_turn=false,
// allow_timer_instruction=false and a synthetic action, exactly as spec §4.5
// "Firing" describes.
type engineFirer interface {
	ResolveTurn(ctx context.Context, input turn.ResolveTurnInput, hook turn.BeforePhaseCHook) turn.ResolveTurnResult
}

// Scheduler runs one cancellable in-memory countdown goroutine per armed
// campaign timer (ArmTimer/CancelTimer mirrors tarsy's
// pkg/queue/pool.go RegisterSession/UnregisterSession registry), invoking
// the engine's system turn when the countdown elapses.
type Scheduler struct {
	uowFactory uow.Factory
	engine     engineFirer
	clock      clock.Clock

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // campaignID -> cancel of its armed goroutine
	wg      sync.WaitGroup
}

func NewScheduler(uowFactory uow.Factory, engine engineFirer, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Scheduler{
		uowFactory: uowFactory,
		engine:     engine,
		clock:      clk,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// ArmTimer starts (or replaces) the in-memory countdown for t, applying the
// campaign's speed_multiplier to compute the effective in-memory delay and
// rewriting the persisted due_at to match (spec §4.5 "Speed multiplier":
// effective delay = clamp(original/multiplier, 15s, 300s); persisted due_at
// is the effective delay).
func (s *Scheduler) ArmTimer(parent context.Context, t store.Timer, speedMultiplier float64) {
	now := s.clock.Now()
	original := t.DueAt.Sub(now)
	if original < 0 {
		original = 0
	}
	if speedMultiplier <= 0 {
		speedMultiplier = 1
	}
	effective := time.Duration(float64(original) / speedMultiplier)
	if effective < minEffectiveDelay {
		effective = minEffectiveDelay
	} else if effective > maxEffectiveDelay {
		effective = maxEffectiveDelay
	}
	effectiveDueAt := now.Add(effective)
	log := slog.With("campaign_id", t.CampaignID, "timer_id", t.ID)

	if err := uow.Run(parent, s.uowFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		return u.Timers().RescheduleDueAt(ctx, t.ID, effectiveDueAt)
	}); err != nil {
		log.Error("timer reschedule failed", "error", err)
	}

	s.CancelTimer(t.CampaignID) // RegisterSession/UnregisterSession pattern: replace any prior task first
	log.Info("timer armed", "effective_delay", effective)

	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancels[t.CampaignID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, t, effective)
}

// CancelTimer cancels the in-memory countdown for campaignID, if any. It does
// not touch the persisted row — callers that also want the row cancelled
// call TimerRepo.CancelActive through a UnitOfWork themselves.
func (s *Scheduler) CancelTimer(campaignID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[campaignID]
	if ok {
		delete(s.cancels, campaignID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown cancels every armed countdown and waits for their goroutines to
// return.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, t store.Timer, delay time.Duration) {
	defer s.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	delete(s.cancels, t.CampaignID)
	s.mu.Unlock()

	s.fire(ctx, t)
}

// fire applies the race guard, marks the row expired, and invokes a system
// turn, consuming the timer on success (spec §4.5 "Firing").
func (s *Scheduler) fire(ctx context.Context, t store.Timer) {
	var skip bool
	var expired bool
	log := slog.With("campaign_id", t.CampaignID, "timer_id", t.ID)

	if err := uow.Run(ctx, s.uowFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		latest, err := u.Turns().LatestOfKind(ctx, t.CampaignID, store.TurnKindPlayer)
		if err != nil && err != store.ErrNotFound {
			return err
		}
		if latest != nil && s.clock.Now().Sub(latest.CreatedAt) < playerTurnRaceWindow {
			skip = true
			return nil
		}
		ok, err := u.Timers().MarkExpired(ctx, t.ID, s.clock.Now())
		if err != nil {
			return err
		}
		expired = ok
		return nil
	}); err != nil {
		log.Error("timer fire precheck failed", "error", err)
		return
	}

	if skip {
		log.Info("timer fire skipped, player turn race window active")
		return
	}
	if !expired {
		return
	}
	log.Info("timer firing")

	action := fmt.Sprintf("[SYSTEM EVENT - TIMED]: %s", t.EventText)
	input := turn.ResolveTurnInput{
		CampaignID:            t.CampaignID,
		ActorID:               systemActorID(t.CampaignID),
		Action:                action,
		SessionID:             t.SessionID,
		RecordPlayerTurn:      false,
		AllowTimerInstruction: false,
	}
	s.engine.ResolveTurn(ctx, input, nil)

	if err := uow.Run(ctx, s.uowFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		_, err := u.Timers().MarkConsumed(ctx, t.ID)
		return err
	}); err != nil {
		log.Error("timer mark-consumed failed", "error", err)
	}
}

// systemActorID is the synthetic actor identity firing a timer resolves its
// turn as. A campaign's timer-driven turns are attributed to this pseudo
// actor rather than any player, since no human is acting.
func systemActorID(campaignID string) string {
	return "system:" + campaignID
}
