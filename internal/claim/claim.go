// Package claim implements ClaimManager (spec §4.1): lease-based
// single-writer admission per (campaign, actor) pair, grounded on
// original_source/persistence/sqlalchemy/repos.py::InflightTurnRepo and, for
// the run-loop/heartbeat shape, tarsy's pkg/queue/worker.go.
package claim

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcfable/campaignforge/internal/clock"
	"github.com/arcfable/campaignforge/internal/store"
	"github.com/google/uuid"
)

// Manager wraps a store.InflightTurnRepo bound to the current unit of work
// with the engine's lease_ttl_seconds knob (spec §9; default 90s).
type Manager struct {
	repo     store.InflightTurnRepo
	clock    clock.Clock
	leaseTTL time.Duration
}

// DefaultLeaseTTL is spec §9's default lease_ttl_seconds.
const DefaultLeaseTTL = 90 * time.Second

func New(repo store.InflightTurnRepo, clk clock.Clock, leaseTTL time.Duration) *Manager {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &Manager{repo: repo, clock: clk, leaseTTL: leaseTTL}
}

// NewToken generates a fresh opaque claim token (spec §4.2: "a fresh
// claim_token ... each attempt").
func NewToken() string {
	return uuid.New().String()
}

// AcquireOrSteal attempts to admit the caller as the exclusive writer for
// (campaignID, actorID) under a freshly minted token, returning the token
// and whether it was acquired (spec §4.1 contract).
func (m *Manager) AcquireOrSteal(ctx context.Context, campaignID, actorID string) (token string, acquired bool, err error) {
	token = NewToken()
	now := m.clock.Now()
	log := slog.With("campaign_id", campaignID, "actor_id", actorID, "claim_token", token)
	acquired, err = m.repo.AcquireOrSteal(ctx, campaignID, actorID, token, now, now.Add(m.leaseTTL))
	if err != nil {
		log.Error("claim acquire failed", "error", err)
		return token, acquired, err
	}
	if acquired {
		log.Info("claim acquired")
	} else {
		log.Warn("claim not acquired, lease held by another attempt")
	}
	return token, acquired, err
}

// ValidateToken reports whether token is still the current, unexpired lease
// holder for (campaignID, actorID).
func (m *Manager) ValidateToken(ctx context.Context, campaignID, actorID, token string) (bool, error) {
	return m.repo.ValidateToken(ctx, campaignID, actorID, token, m.clock.Now())
}

// Heartbeat extends the lease's expiry for a caller that wants to hold it
// longer than one resolve-turn call without re-acquiring (SPEC_FULL §4.3's
// extension over the Python original; resolve_turn itself never calls this —
// its claim only spans Phase A through Phase C).
func (m *Manager) Heartbeat(ctx context.Context, campaignID, actorID, token string) (bool, error) {
	now := m.clock.Now()
	return m.repo.Heartbeat(ctx, campaignID, actorID, token, now, now.Add(m.leaseTTL))
}

// Release deletes the lease row held under token and returns any store
// error. TurnEngine's Phase C calls it inside its commit transaction, so a
// failed release there fails the commit; ReleaseBestEffort is the variant
// for paths where a failed release must not surface as the caller's error.
func (m *Manager) Release(ctx context.Context, campaignID, actorID, token string) error {
	return m.repo.Release(ctx, campaignID, actorID, token)
}

// ReleaseBestEffort calls Release and discards any error, matching
// engine.py::_release_claim_best_effort's "swallow all exceptions" behavior.
func (m *Manager) ReleaseBestEffort(ctx context.Context, campaignID, actorID, token string) {
	if err := m.Release(ctx, campaignID, actorID, token); err != nil {
		slog.Warn("best-effort claim release failed", "campaign_id", campaignID, "actor_id", actorID, "claim_token", token, "error", err)
	}
}
