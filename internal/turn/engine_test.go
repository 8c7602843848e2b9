package turn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfable/campaignforge/internal/clock"
	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/store/storetest"
	"github.com/arcfable/campaignforge/ports"
)

// stubLLM returns a fixed output (or an error) and records every TurnContext
// it was called with, mirroring the Python original's tests/test_engine_flow.py::StubLLM.
type stubLLM struct {
	output ports.LLMTurnOutput
	err    error
	calls  []ports.TurnContext
}

func (s *stubLLM) CompleteTurn(ctx context.Context, tc ports.TurnContext) (ports.LLMTurnOutput, error) {
	s.calls = append(s.calls, tc)
	if s.err != nil {
		return ports.LLMTurnOutput{}, s.err
	}
	return s.output, nil
}

type nilResolver struct{}

func (nilResolver) ResolveDiscordMention(ctx context.Context, mention string) (string, bool, error) {
	return "", false, nil
}

func seedCampaign(t *testing.T, db *storetest.DB) string {
	t.Helper()
	ctx := context.Background()
	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	c := &store.Campaign{Namespace: "guild", Name: "Fen of Ash", NameNormalized: "fen of ash", CreatedByActorID: "actor-dm", State: store.Document{}, Characters: store.Document{}}
	require.NoError(t, u.Campaigns().Create(ctx, c))
	require.NoError(t, u.Commit(ctx))
	return c.ID
}

func newTestEngine(db *storetest.DB, llm ports.LLMPort, clk clock.Clock, maxRetries int) *Engine {
	return New(Config{
		UOWFactory:         db.Factory(),
		Clock:              clk,
		LeaseTTLSeconds:    90,
		MaxConflictRetries: maxRetries,
	}, llm, nilResolver{})
}

func TestResolveTurn_HappyPathAppliesNarrationAndAdvancesRowVersion(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "You step into the fen.", XPAwarded: 10}}
	engine := newTestEngine(db, llm, clock.System{}, 1)

	result := engine.ResolveTurn(context.Background(), NewResolveTurnInput(campaignID, "actor-1", "look around"), nil)

	require.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "You step into the fen.", result.Narration)
	assert.NotZero(t, result.NarratorTurnID)

	campaign := db.Campaigns[campaignID]
	assert.Equal(t, int64(2), campaign.RowVersion) // 1 at create, CAS bumps to 2
}

func TestResolveTurn_CASConflictRollsBackAllWrites(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "You step into the fen."}}
	engine := newTestEngine(db, llm, clock.System{}, 0) // no retries: the conflict must surface directly

	turnsBefore := len(db.Turns)

	// beforePhaseC simulates a concurrent writer committing its own turn
	// between Phase A's read and Phase C's CAS attempt, bumping row_version
	// out from under this attempt.
	hook := func(ctx context.Context) {
		u, err := db.Factory()(ctx)
		require.NoError(t, err)
		c, err := u.Campaigns().Get(ctx, campaignID)
		require.NoError(t, err)
		require.NoError(t, u.Campaigns().CASApplyUpdate(ctx, campaignID, c.RowVersion, store.CampaignUpdate{
			Summary: "a concurrent writer got here first", State: c.State, Characters: c.Characters,
		}))
		require.NoError(t, u.Commit(ctx))
	}

	result := engine.ResolveTurn(context.Background(), NewResolveTurnInput(campaignID, "actor-1", "look around"), hook)

	require.Equal(t, StatusConflict, result.Status)
	assert.Equal(t, ReasonRowVersionChanged, result.ConflictReason)

	// No turn, snapshot, or campaign write from the losing attempt survived.
	assert.Equal(t, turnsBefore, len(db.Turns), "the losing Phase C attempt must not have appended any turn")
	assert.Empty(t, db.Snapshots)
	assert.Equal(t, "a concurrent writer got here first", db.Campaigns[campaignID].Summary)
}

func TestResolveTurn_RetriesOnceThenSucceedsWithFreshRowVersion(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "The mist parts."}}
	engine := newTestEngine(db, llm, clock.System{}, 1)

	bumpedOnce := false
	hook := func(ctx context.Context) {
		if bumpedOnce {
			return
		}
		bumpedOnce = true
		u, err := db.Factory()(ctx)
		require.NoError(t, err)
		c, err := u.Campaigns().Get(ctx, campaignID)
		require.NoError(t, err)
		require.NoError(t, u.Campaigns().CASApplyUpdate(ctx, campaignID, c.RowVersion, store.CampaignUpdate{
			Summary: "interloper", State: c.State, Characters: c.Characters,
		}))
		require.NoError(t, u.Commit(ctx))
	}

	result := engine.ResolveTurn(context.Background(), NewResolveTurnInput(campaignID, "actor-1", "look around"), hook)

	require.Equal(t, StatusOK, result.Status, "a single retry with a fresh claim must succeed")
	assert.Equal(t, "The mist parts.", result.Narration)
	assert.Len(t, llm.calls, 2, "phase A/LLM/phase C must have run twice: once to fail, once to succeed")
}

func TestResolveTurn_SingleRetryThenConflictWhenBumpedEveryAttempt(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "The mist parts."}}
	engine := newTestEngine(db, llm, clock.System{}, 1)

	hook := func(ctx context.Context) {
		u, err := db.Factory()(ctx)
		require.NoError(t, err)
		c, err := u.Campaigns().Get(ctx, campaignID)
		require.NoError(t, err)
		require.NoError(t, u.Campaigns().CASApplyUpdate(ctx, campaignID, c.RowVersion, store.CampaignUpdate{
			Summary: "interloper", State: c.State, Characters: c.Characters,
		}))
		require.NoError(t, u.Commit(ctx))
	}

	result := engine.ResolveTurn(context.Background(), NewResolveTurnInput(campaignID, "actor-1", "look around"), hook)

	require.Equal(t, StatusConflict, result.Status)
	assert.Equal(t, ReasonRowVersionChanged, result.ConflictReason)
	assert.Len(t, llm.calls, 2, "max_conflict_retries=1 allows exactly two attempts")
}

func TestResolveTurn_BusyWhenLeaseAlreadyHeld(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	ctx := context.Background()

	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	now := clock.System{}.Now()
	acquired, err := u.Inflight().AcquireOrSteal(ctx, campaignID, "actor-1", "someone-elses-token", now, now.Add(90*time.Second))
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, u.Commit(ctx))

	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "n/a"}}
	engine := newTestEngine(db, llm, clock.System{}, 1)
	result := engine.ResolveTurn(ctx, NewResolveTurnInput(campaignID, "actor-1", "look around"), nil)

	require.Equal(t, StatusBusy, result.Status)
	assert.Equal(t, ReasonTurnInflight, result.ConflictReason)
	assert.Empty(t, llm.calls, "the LLM must never be called when the claim could not be acquired")
}

func TestResolveTurn_UnknownCampaignIsBusyCampaignNotFound(t *testing.T) {
	db := storetest.New()
	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "n/a"}}
	engine := newTestEngine(db, llm, clock.System{}, 1)

	result := engine.ResolveTurn(context.Background(), NewResolveTurnInput("no-such-campaign", "actor-1", "look around"), nil)
	require.Equal(t, StatusBusy, result.Status)
	assert.Equal(t, ReasonCampaignNotFound, result.ConflictReason)
}

func TestResolveTurn_LLMErrorReleasesClaimAndReturnsError(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	llm := &stubLLM{err: assertAnError{}}
	engine := newTestEngine(db, llm, clock.System{}, 1)
	ctx := context.Background()

	result := engine.ResolveTurn(ctx, NewResolveTurnInput(campaignID, "actor-1", "look around"), nil)
	require.Equal(t, StatusError, result.Status)

	// Claim must have been released so a subsequent attempt is not blocked.
	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	now := clock.System{}.Now()
	acquired, err := u.Inflight().AcquireOrSteal(ctx, campaignID, "actor-1", "next-token", now, now.Add(90*time.Second))
	require.NoError(t, err)
	assert.True(t, acquired)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "llm backend unavailable" }

type recordingInterrupter struct {
	calls []string
}

func (r *recordingInterrupter) CancelTimer(campaignID string) {
	r.calls = append(r.calls, campaignID)
}

func TestResolveTurn_OrdinaryPlayerTurnInterruptsActiveInterruptibleTimer(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	ctx := context.Background()

	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	interruptAction := "The rope finally snaps and falls to the floor."
	require.NoError(t, u.Timers().Schedule(ctx, &store.Timer{
		ID: "timer-1", CampaignID: campaignID, EventText: "the rope frays",
		Interruptible: true, InterruptAction: &interruptAction,
		DueAt: clock.System{}.Now().Add(time.Minute),
	}))
	require.NoError(t, u.Commit(ctx))

	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "You climb down."}}
	engine := newTestEngine(db, llm, clock.System{}, 1)
	interrupter := &recordingInterrupter{}
	engine.SetInterrupter(interrupter)

	result := engine.ResolveTurn(ctx, NewResolveTurnInput(campaignID, "actor-1", "climb down"), nil)

	require.Equal(t, StatusOK, result.Status)
	assert.Equal(t, store.TimerCancelled, db.Timers["timer-1"].Status)
	assert.Equal(t, []string{campaignID}, interrupter.calls, "the in-memory countdown must be cancelled too")

	foundAversion := false
	for _, turnRow := range db.Turns {
		if turnRow.CampaignID == campaignID && turnRow.Kind == store.TurnKindNarrator &&
			turnRow.Content == "[SYSTEM EVENT - ABORTED]: "+interruptAction {
			foundAversion = true
		}
	}
	assert.True(t, foundAversion, "an auxiliary system narrator turn describing the aversion must be recorded")
}

func TestResolveTurn_TimerFiredTurnDoesNotInterruptItself(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	ctx := context.Background()

	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	require.NoError(t, u.Timers().Schedule(ctx, &store.Timer{
		ID: "timer-1", CampaignID: campaignID, EventText: "the bell tolls",
		Interruptible: true, DueAt: clock.System{}.Now().Add(time.Minute),
	}))
	require.NoError(t, u.Commit(ctx))

	llm := &stubLLM{output: ports.LLMTurnOutput{Narration: "The bell tolls across the keep."}}
	engine := newTestEngine(db, llm, clock.System{}, 1)
	interrupter := &recordingInterrupter{}
	engine.SetInterrupter(interrupter)

	input := NewResolveTurnInput(campaignID, systemActorIDForTest(campaignID), "[SYSTEM EVENT - TIMED]: the bell tolls")
	input.RecordPlayerTurn = false
	result := engine.ResolveTurn(ctx, input, nil)

	require.Equal(t, StatusOK, result.Status)
	assert.Equal(t, store.TimerScheduledUnbound, db.Timers["timer-1"].Status, "a system-fired turn must never interrupt the timer that is mid-fire")
	assert.Empty(t, interrupter.calls)
}

func systemActorIDForTest(campaignID string) string { return "system:" + campaignID }

func TestResolveTurn_GiveItemUnresolvedTargetIsNonFatal(t *testing.T) {
	db := storetest.New()
	campaignID := seedCampaign(t, db)
	mention := "<@999>"
	llm := &stubLLM{output: ports.LLMTurnOutput{
		Narration: "You offer the lantern, but no one claims it.",
		GiveItem:  &ports.GiveItemInstruction{Item: "lantern", ToDiscordMention: &mention},
	}}
	engine := newTestEngine(db, llm, clock.System{}, 1)

	result := engine.ResolveTurn(context.Background(), NewResolveTurnInput(campaignID, "actor-1", "give lantern to nobody"), nil)

	require.Equal(t, StatusOK, result.Status, "an unresolved give_item target must not fail the turn")
	require.NotNil(t, result.GiveItem)
	assert.Nil(t, result.GiveItem.ToActorID)

	foundEvent := false
	for _, e := range db.Outbox {
		if e.EventType == "give_item_unresolved" && e.CampaignID == campaignID {
			foundEvent = true
		}
	}
	assert.True(t, foundEvent, "an unresolved give_item must still emit a give_item_unresolved outbox event")
}
