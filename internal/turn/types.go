package turn

import (
	"context"

	"github.com/arcfable/campaignforge/ports"
)

// Status is ResolveTurnResult's closed enum (spec §4.2, §9 "Sum types").
type Status string

const (
	StatusOK       Status = "ok"
	StatusBusy     Status = "busy"
	StatusConflict Status = "conflict"
	StatusError    Status = "error"
)

// ResolveTurnInput is TurnEngine.ResolveTurn's input (spec §4.2).
type ResolveTurnInput struct {
	CampaignID    string
	ActorID       string
	Action        string
	SessionID     *string
	// RecordPlayerTurn defaults to true (SPEC_FULL §4.4's promoted zero
	// value is handled by NewResolveTurnInput, not by the zero Go bool).
	RecordPlayerTurn bool
	// AllowTimerInstruction defaults to true; see RecordPlayerTurn note.
	AllowTimerInstruction bool
}

// NewResolveTurnInput builds a ResolveTurnInput with spec §4.2's documented
// defaults (record_player_turn=true, allow_timer_instruction=true).
func NewResolveTurnInput(campaignID, actorID, action string) ResolveTurnInput {
	return ResolveTurnInput{
		CampaignID:            campaignID,
		ActorID:               actorID,
		Action:                action,
		RecordPlayerTurn:      true,
		AllowTimerInstruction: true,
	}
}

// ResolveTurnResult is TurnEngine.ResolveTurn's output (spec §4.2, §6.2).
type ResolveTurnResult struct {
	Status           Status
	Narration        string
	SceneImagePrompt *string
	TimerInstruction *ports.TimerInstruction
	ConflictReason   Reason
	ErrorReason      string
	GiveItem         *ports.GiveItemInstruction
	NarratorTurnID   int64
}

// BeforePhaseCHook is an optional test seam invoked immediately before Phase
// C begins its own transaction, letting tests inject a concurrent mutation
// to exercise the CAS-conflict path (spec §8 scenarios a/b;
// tests/test_engine_flow.py's StubLLM/before_phase_c_hook).
type BeforePhaseCHook func(ctx context.Context)
