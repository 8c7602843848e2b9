// Package rewind implements RewindEngine (spec §4.6): snapshot-based atomic
// restore with cascade delete of later turns/snapshots and the
// memory-visibility watermark, ported from
// original_source/src/text_game_engine/core/engine.py::GameEngine.rewind_to_turn
// and filter_memory_hits_by_visibility, plus the resolve-target and
// channel-scoped extensions grounded on
// original_source/src/text_game_engine/zork_emulator.py.
package rewind

import (
	"context"
	"log/slog"

	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/uow"
	"github.com/arcfable/campaignforge/ports"
)

// Status is RewindResult's closed enum (spec §4.6, §6.2, §9).
type Status string

const (
	StatusOK       Status = "ok"
	StatusConflict Status = "conflict"
	StatusError    Status = "error"
)

const (
	ReasonCampaignNotFound   = "campaign_not_found"
	ReasonSnapshotNotFound   = "snapshot_not_found"
	ReasonRowVersionConflict = "row_version_conflict"
)

// Result is RewindEngine.RewindToTurn's output (spec §6.2).
type Result struct {
	Status       Status
	TargetTurnID int64
	DeletedTurns int
	Reason       string
}

// Engine is RewindEngine.
type Engine struct {
	uowFactory uow.Factory
}

func New(uowFactory uow.Factory) *Engine {
	return &Engine{uowFactory: uowFactory}
}

// RewindToTurn restores campaign and its players to the state captured by
// the Snapshot at targetTurnID, deletes every Turn/Snapshot strictly after
// it, sets the memory-visibility watermark, and enqueues
// memory_prune_requested — exactly spec §4.6 steps 1-7.
func (e *Engine) RewindToTurn(ctx context.Context, campaignID string, targetTurnID int64) Result {
	return e.rewind(ctx, campaignID, targetTurnID, nil)
}

// RewindChannelScoped restricts the turn/snapshot deletion to sessions
// belonging to surfaceRef (a channel or thread id), grounded on
// zork_emulator.py::_execute_rewind_channel_scoped (SPEC_FULL §4.7). The
// campaign/player CAS restore is identical to the unscoped case.
func (e *Engine) RewindChannelScoped(ctx context.Context, campaignID string, targetTurnID int64, surfaceRef string) Result {
	return e.rewind(ctx, campaignID, targetTurnID, &surfaceRef)
}

func (e *Engine) rewind(ctx context.Context, campaignID string, targetTurnID int64, surfaceRef *string) Result {
	var result Result
	log := slog.With("campaign_id", campaignID, "target_turn_id", targetTurnID)

	err := uow.Run(ctx, e.uowFactory, func(ctx context.Context, u uow.UnitOfWork) error {
		campaign, err := u.Campaigns().Get(ctx, campaignID)
		if err != nil {
			if err == store.ErrNotFound {
				result = Result{Status: StatusError, Reason: ReasonCampaignNotFound}
				return errStop
			}
			return err
		}

		snapshot, err := u.Snapshots().GetByCampaignTurnID(ctx, campaignID, targetTurnID)
		if err != nil {
			if err == store.ErrNotFound {
				result = Result{Status: StatusError, Reason: ReasonSnapshotNotFound}
				return errStop
			}
			return err
		}

		watermark := targetTurnID
		casErr := u.Campaigns().CASApplyUpdate(ctx, campaignID, campaign.RowVersion, store.CampaignUpdate{
			Summary:                snapshot.CampaignSummary,
			State:                  snapshot.CampaignState,
			Characters:             snapshot.CampaignCharacters,
			LastNarration:          snapshot.CampaignLastNarration,
			MemoryVisibleMaxTurnID: &watermark,
		})
		if casErr != nil {
			if casErr == store.ErrConcurrentModification {
				result = Result{Status: StatusConflict, Reason: ReasonRowVersionConflict}
				return errStop
			}
			return casErr
		}

		if err := u.Players().RestoreFromSnapshot(ctx, campaignID, snapshot.Players); err != nil {
			return err
		}

		var sessionIDs []string
		if surfaceRef != nil {
			sessionIDs, err = u.Sessions().SessionIDsForSurface(ctx, campaignID, *surfaceRef)
			if err != nil {
				return err
			}
		}

		// Snapshot deletion must mirror the turn deletion's own scoping: a
		// channel-scoped rewind only deletes the narrator turns it is about
		// to delete, never a snapshot belonging to a narrator turn in a
		// different session (zork_emulator.py::_execute_rewind_channel_scoped).
		narratorIDs, err := u.Turns().NarratorIDsAfter(ctx, campaignID, targetTurnID, sessionIDs)
		if err != nil {
			return err
		}
		if _, err := u.Snapshots().DeleteByTurnIDs(ctx, campaignID, narratorIDs); err != nil {
			return err
		}
		deleted, err := u.Turns().DeleteAfter(ctx, campaignID, targetTurnID, sessionIDs)
		if err != nil {
			return err
		}

		if err := u.Outbox().Add(ctx, &store.OutboxEvent{
			CampaignID:     campaignID,
			SessionScope:   store.NoneSessionScope,
			EventType:      "memory_prune_requested",
			IdempotencyKey: "rewind:" + itoa(targetTurnID),
			Payload:        store.Document{"target_turn_id": targetTurnID},
			Status:         "pending",
		}); err != nil {
			return err
		}

		result = Result{Status: StatusOK, TargetTurnID: targetTurnID, DeletedTurns: deleted}
		return nil
	})

	if err != nil && err != errStop {
		log.Error("rewind failed", "error", err)
		return Result{Status: StatusError, Reason: err.Error()}
	}
	switch result.Status {
	case StatusOK:
		log.Info("rewind committed", "deleted_turns", result.DeletedTurns)
	case StatusConflict:
		log.Warn("rewind conflict", "reason", result.Reason)
	case StatusError:
		log.Error("rewind failed", "reason", result.Reason)
	}
	return result
}

// FilterMemoryHitsByVisibility drops hits whose TurnID exceeds the
// campaign's memory_visible_max_turn_id watermark; a nil watermark disables
// filtering entirely (spec §4.6 "Memory visibility filter").
func FilterMemoryHitsByVisibility(watermark *int64, hits []ports.MemoryHit) []ports.MemoryHit {
	if watermark == nil {
		return hits
	}
	out := make([]ports.MemoryHit, 0, len(hits))
	for _, h := range hits {
		if h.TurnID <= *watermark {
			out = append(out, h)
		}
	}
	return out
}

// errStop is a sentinel used to short-circuit uow.Run's fn once result has
// already been populated with a non-OK Result, without it being mistaken
// for an unexpected error by the caller.
var errStop = stopError{}

type stopError struct{}

func (stopError) Error() string { return "rewind: stop" }

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
