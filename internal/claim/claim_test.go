package claim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfable/campaignforge/internal/clock"
	"github.com/arcfable/campaignforge/internal/store/storetest"
)

func newManager(t *testing.T, clk clock.Clock, leaseTTL time.Duration) (*Manager, *storetest.DB) {
	t.Helper()
	db := storetest.New()
	factory := db.Factory()
	uowInstance, err := factory(context.Background())
	require.NoError(t, err)
	return New(uowInstance.Inflight(), clk, leaseTTL), db
}

func TestAcquireOrSteal_FirstClaimSucceeds(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr, _ := newManager(t, clk, 90*time.Second)

	token, acquired, err := mgr.AcquireOrSteal(context.Background(), "campaign-1", "actor-1")
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.NotEmpty(t, token)
}

func TestAcquireOrSteal_SecondClaimBlockedBeforeExpiry(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr, _ := newManager(t, clk, 90*time.Second)
	ctx := context.Background()

	_, acquired, err := mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)
	require.True(t, acquired)

	clk.Advance(10 * time.Second)
	_, acquired, err = mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)
	assert.False(t, acquired, "a live, unexpired lease must block a second claimant")
}

func TestAcquireOrSteal_StealsAfterExpiry(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr, _ := newManager(t, clk, 90*time.Second)
	ctx := context.Background()

	firstToken, acquired, err := mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)
	require.True(t, acquired)

	clk.Advance(91 * time.Second)
	secondToken, acquired, err := mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)
	require.True(t, acquired, "an expired lease must be stealable")
	assert.NotEqual(t, firstToken, secondToken)

	valid, err := mgr.ValidateToken(ctx, "campaign-1", "actor-1", firstToken)
	require.NoError(t, err)
	assert.False(t, valid, "the stolen token must no longer validate")
}

func TestValidateToken_ExpiresWithClock(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr, _ := newManager(t, clk, 5*time.Second)
	ctx := context.Background()

	token, acquired, err := mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)
	require.True(t, acquired)

	valid, err := mgr.ValidateToken(ctx, "campaign-1", "actor-1", token)
	require.NoError(t, err)
	assert.True(t, valid)

	clk.Advance(6 * time.Second)
	valid, err = mgr.ValidateToken(ctx, "campaign-1", "actor-1", token)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestHeartbeat_ExtendsExpiryForCurrentHolderOnly(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr, _ := newManager(t, clk, 5*time.Second)
	ctx := context.Background()

	token, _, err := mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)

	clk.Advance(4 * time.Second)
	ok, err := mgr.Heartbeat(ctx, "campaign-1", "actor-1", token)
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(4 * time.Second)
	valid, err := mgr.ValidateToken(ctx, "campaign-1", "actor-1", token)
	require.NoError(t, err)
	assert.True(t, valid, "heartbeat should have pushed expiry past this point")

	ok, err = mgr.Heartbeat(ctx, "campaign-1", "actor-1", "not-the-real-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseBestEffort_SwallowsErrors(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr, _ := newManager(t, clk, 90*time.Second)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		mgr.ReleaseBestEffort(ctx, "campaign-1", "actor-1", "whatever-token")
	})

	token, acquired, err := mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)
	require.True(t, acquired)
	mgr.ReleaseBestEffort(ctx, "campaign-1", "actor-1", token)

	secondToken, acquired, err := mgr.AcquireOrSteal(ctx, "campaign-1", "actor-1")
	require.NoError(t, err)
	assert.True(t, acquired, "released lease must be immediately reacquirable")
	assert.NotEqual(t, token, secondToken)
}
