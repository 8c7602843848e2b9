package rewind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/store/storetest"
	"github.com/arcfable/campaignforge/ports"
)

func seedCampaignWithSnapshot(t *testing.T, db *storetest.DB) (campaignID string, narratorTurnID int64) {
	t.Helper()
	ctx := context.Background()
	factory := db.Factory()
	u, err := factory(ctx)
	require.NoError(t, err)

	c := &store.Campaign{Namespace: "guild", Name: "The Sunken Keep", NameNormalized: "the sunken keep", CreatedByActorID: "actor-dm"}
	require.NoError(t, u.Campaigns().Create(ctx, c))

	turnID, err := u.Turns().Add(ctx, &store.Turn{CampaignID: c.ID, Kind: store.TurnKindNarrator, Content: "You enter the keep."})
	require.NoError(t, err)

	require.NoError(t, u.Snapshots().Add(ctx, &store.Snapshot{
		TurnID:          turnID,
		CampaignID:      c.ID,
		CampaignState:   store.Document{"room": "entrance"},
		CampaignSummary: "Party entered the keep.",
		Players:         []store.PlayerSnapshot{{ActorID: "actor-1", Level: 2, XP: 50, State: store.Document{"hp": 10}}},
	}))

	require.NoError(t, u.Players().Update(ctx, &store.Player{CampaignID: c.ID, ActorID: "actor-1", Level: 5, XP: 900, State: store.Document{"hp": 1}}))

	require.NoError(t, u.Commit(ctx))
	return c.ID, turnID
}

func TestRewindToTurn_RestoresCampaignAndPlayersAndDeletesLaterTurns(t *testing.T) {
	db := storetest.New()
	campaignID, narratorTurnID := seedCampaignWithSnapshot(t, db)
	ctx := context.Background()

	// Add a turn after the snapshot point that rewind must delete.
	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	_, err = u.Turns().Add(ctx, &store.Turn{CampaignID: campaignID, Kind: store.TurnKindPlayer, Content: "I search the room."})
	require.NoError(t, err)
	require.NoError(t, u.Commit(ctx))

	engine := New(db.Factory())
	result := engine.RewindToTurn(ctx, campaignID, narratorTurnID)

	require.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 1, result.DeletedTurns)

	u2, err := db.Factory()(ctx)
	require.NoError(t, err)
	campaign, err := u2.Campaigns().Get(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, "Party entered the keep.", campaign.Summary)
	require.NotNil(t, campaign.MemoryVisibleMaxTurnID)
	assert.Equal(t, narratorTurnID, *campaign.MemoryVisibleMaxTurnID)

	player, err := u2.Players().GetByCampaignActor(ctx, campaignID, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, 2, player.Level)
	assert.Equal(t, 10, player.State["hp"])
}

func TestRewindToTurn_EmitsIdempotentOutboxEvent(t *testing.T) {
	db := storetest.New()
	campaignID, narratorTurnID := seedCampaignWithSnapshot(t, db)
	ctx := context.Background()
	engine := New(db.Factory())

	result := engine.RewindToTurn(ctx, campaignID, narratorTurnID)
	require.Equal(t, StatusOK, result.Status)

	// Rewinding to the same target again must not duplicate the outbox event.
	result = engine.RewindToTurn(ctx, campaignID, narratorTurnID)
	require.Equal(t, StatusOK, result.Status)

	count := 0
	for _, e := range db.Outbox {
		if e.CampaignID == campaignID && e.EventType == "memory_prune_requested" {
			count++
		}
	}
	assert.Equal(t, 1, count, "duplicate rewind to the same target must not duplicate the outbox event")
}

func TestRewindToTurn_UnknownCampaignReturnsError(t *testing.T) {
	db := storetest.New()
	engine := New(db.Factory())
	result := engine.RewindToTurn(context.Background(), "no-such-campaign", 1)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, ReasonCampaignNotFound, result.Reason)
}

func TestRewindToTurn_MissingSnapshotReturnsError(t *testing.T) {
	db := storetest.New()
	ctx := context.Background()
	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	c := &store.Campaign{Namespace: "guild", Name: "Empty", NameNormalized: "empty", CreatedByActorID: "actor-dm"}
	require.NoError(t, u.Campaigns().Create(ctx, c))
	require.NoError(t, u.Commit(ctx))

	engine := New(db.Factory())
	result := engine.RewindToTurn(ctx, c.ID, 999)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, ReasonSnapshotNotFound, result.Reason)
}

func TestRewindChannelScoped_LeavesOtherSessionsTurnsAndSnapshotsIntact(t *testing.T) {
	db := storetest.New()
	campaignID, firstNarratorTurnID := seedCampaignWithSnapshot(t, db)
	ctx := context.Background()

	db.Sessions["session-a"] = &store.Session{ID: "session-a", CampaignID: campaignID, SurfaceChannelID: "channel-a"}
	db.Sessions["session-b"] = &store.Session{ID: "session-b", CampaignID: campaignID, SurfaceChannelID: "channel-b"}

	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	sessionA := "session-a"
	sessionB := "session-b"
	_, err = u.Turns().Add(ctx, &store.Turn{CampaignID: campaignID, SessionID: &sessionA, Kind: store.TurnKindPlayer, Content: "I search channel a's room."})
	require.NoError(t, err)
	narratorATurnID, err := u.Turns().Add(ctx, &store.Turn{CampaignID: campaignID, SessionID: &sessionA, Kind: store.TurnKindNarrator, Content: "Channel A narration."})
	require.NoError(t, err)
	require.NoError(t, u.Snapshots().Add(ctx, &store.Snapshot{TurnID: narratorATurnID, CampaignID: campaignID, CampaignSummary: "channel a snapshot"}))

	_, err = u.Turns().Add(ctx, &store.Turn{CampaignID: campaignID, SessionID: &sessionB, Kind: store.TurnKindPlayer, Content: "I search channel b's room."})
	require.NoError(t, err)
	narratorBTurnID, err := u.Turns().Add(ctx, &store.Turn{CampaignID: campaignID, SessionID: &sessionB, Kind: store.TurnKindNarrator, Content: "Channel B narration."})
	require.NoError(t, err)
	require.NoError(t, u.Snapshots().Add(ctx, &store.Snapshot{TurnID: narratorBTurnID, CampaignID: campaignID, CampaignSummary: "channel b snapshot"}))
	require.NoError(t, u.Commit(ctx))

	engine := New(db.Factory())
	result := engine.RewindChannelScoped(ctx, campaignID, firstNarratorTurnID, "channel-a")

	require.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 2, result.DeletedTurns, "only channel a's player+narrator turns are in scope")

	foundBNarratorTurn := false
	for _, turnRow := range db.Turns {
		if turnRow.ID == narratorBTurnID {
			foundBNarratorTurn = true
		}
	}
	assert.True(t, foundBNarratorTurn, "channel b's turns must survive a channel-a-scoped rewind")

	foundBSnapshot := false
	for _, s := range db.Snapshots {
		if s.TurnID == narratorBTurnID {
			foundBSnapshot = true
		}
	}
	assert.True(t, foundBSnapshot, "channel b's snapshot must survive a channel-a-scoped rewind")

	for _, s := range db.Snapshots {
		assert.NotEqual(t, narratorATurnID, s.TurnID, "channel a's snapshot must have been deleted")
	}
}

func TestFilterMemoryHitsByVisibility_NilWatermarkDisablesFiltering(t *testing.T) {
	hits := []ports.MemoryHit{{TurnID: 1}, {TurnID: 100}}
	out := FilterMemoryHitsByVisibility(nil, hits)
	assert.Equal(t, hits, out)
}

func TestFilterMemoryHitsByVisibility_DropsHitsAboveWatermark(t *testing.T) {
	watermark := int64(10)
	hits := []ports.MemoryHit{{TurnID: 3}, {TurnID: 10}, {TurnID: 11}, {TurnID: 50}}
	out := FilterMemoryHitsByVisibility(&watermark, hits)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3), out[0].TurnID)
	assert.Equal(t, int64(10), out[1].TurnID)
}

func TestResolveRewindTarget_DirectNarratorHit(t *testing.T) {
	db := storetest.New()
	ctx := context.Background()
	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	c := &store.Campaign{Namespace: "guild", Name: "X", NameNormalized: "x", CreatedByActorID: "actor-dm"}
	require.NoError(t, u.Campaigns().Create(ctx, c))
	msgID := "discord-msg-5"
	turnID, err := u.Turns().Add(ctx, &store.Turn{CampaignID: c.ID, Kind: store.TurnKindNarrator, Content: "...", ExternalMessageID: &msgID})
	require.NoError(t, err)
	require.NoError(t, u.Commit(ctx))

	got, err := ResolveRewindTarget(ctx, db.Factory(), c.ID, msgID)
	require.NoError(t, err)
	assert.Equal(t, turnID, got)
}

func TestResolveRewindTarget_PlayerTurnFallsForwardToNextNarratorTurn(t *testing.T) {
	db := storetest.New()
	ctx := context.Background()
	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	c := &store.Campaign{Namespace: "guild", Name: "X", NameNormalized: "x", CreatedByActorID: "actor-dm"}
	require.NoError(t, u.Campaigns().Create(ctx, c))

	userMsgID := "discord-user-msg-7"
	_, err = u.Turns().Add(ctx, &store.Turn{CampaignID: c.ID, Kind: store.TurnKindPlayer, Content: "I attack", ExternalUserMsgID: &userMsgID})
	require.NoError(t, err)
	narratorTurnID, err := u.Turns().Add(ctx, &store.Turn{CampaignID: c.ID, Kind: store.TurnKindNarrator, Content: "You strike true."})
	require.NoError(t, err)
	require.NoError(t, u.Commit(ctx))

	got, err := ResolveRewindTarget(ctx, db.Factory(), c.ID, userMsgID)
	require.NoError(t, err)
	assert.Equal(t, narratorTurnID, got)
}

func TestResolveRewindTarget_UnknownMessageIsNotFound(t *testing.T) {
	db := storetest.New()
	ctx := context.Background()
	u, err := db.Factory()(ctx)
	require.NoError(t, err)
	c := &store.Campaign{Namespace: "guild", Name: "X", NameNormalized: "x", CreatedByActorID: "actor-dm"}
	require.NoError(t, u.Campaigns().Create(ctx, c))
	require.NoError(t, u.Commit(ctx))

	_, err = ResolveRewindTarget(ctx, db.Factory(), c.ID, "no-such-message")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
