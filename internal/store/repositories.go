package store

import (
	"context"
	"time"
)

// CampaignRepo is the repository contract for the Campaign aggregate.
type CampaignRepo interface {
	Get(ctx context.Context, id string) (*Campaign, error)
	GetByName(ctx context.Context, namespace, nameNormalized string) (*Campaign, error)
	Create(ctx context.Context, c *Campaign) error
	// CASApplyUpdate writes upd to the row identified by id only if its
	// current RowVersion equals expectedRowVersion, incrementing RowVersion
	// by one. Returns ErrConcurrentModification if the row didn't match.
	CASApplyUpdate(ctx context.Context, id string, expectedRowVersion int64, upd CampaignUpdate) error
}

// ActorRepo is the repository contract for Actor and its external refs.
type ActorRepo interface {
	Get(ctx context.Context, id string) (*Actor, error)
	ResolveExternalRef(ctx context.Context, provider, externalID string) (*Actor, error)
}

// SessionRepo is the repository contract for Session.
type SessionRepo interface {
	Get(ctx context.Context, id string) (*Session, error)
	// SessionIDsForSurface returns the ids of every Session whose
	// SurfaceChannelID, SurfaceThreadID, or SurfaceKey equals surfaceRef —
	// the scoping set used by channel-scoped rewind (spec §4.6 step 5).
	SessionIDsForSurface(ctx context.Context, campaignID, surfaceRef string) ([]string, error)
}

// PlayerRepo is the repository contract for Player.
type PlayerRepo interface {
	GetByCampaignActor(ctx context.Context, campaignID, actorID string) (*Player, error)
	// UpsertLazy creates a default Player row for (campaignID, actorID) if
	// none exists yet (spec §3 "Players are created lazily on first
	// reference"), returning the existing or newly created row.
	UpsertLazy(ctx context.Context, campaignID, actorID string) (*Player, error)
	Update(ctx context.Context, p *Player) error
	ListByCampaign(ctx context.Context, campaignID string) ([]Player, error)
	// RestoreFromSnapshot overwrites Level/XP/Attributes/State for each
	// player referenced in the snapshot payload (rewind step 4).
	RestoreFromSnapshot(ctx context.Context, campaignID string, players []PlayerSnapshot) error
}

// TurnRepo is the repository contract for the append-only Turn log.
type TurnRepo interface {
	Add(ctx context.Context, t *Turn) (int64, error)
	// Recent returns up to limit turns in ascending id order, i.e. the
	// chronological tail of the campaign's log (spec §4.2 Phase A step 4).
	Recent(ctx context.Context, campaignID string, limit int) ([]Turn, error)
	Get(ctx context.Context, campaignID string, turnID int64) (*Turn, error)
	// GetByExternalMessageID finds a narrator turn by its bound external
	// message id (zork_emulator.py::_resolve_rewind_target_turn_id).
	GetByExternalMessageID(ctx context.Context, campaignID, externalMessageID string) (*Turn, error)
	// GetByExternalUserMessageID finds the player turn bound to a given
	// external user-message id (same grounding as above).
	GetByExternalUserMessageID(ctx context.Context, campaignID, externalUserMessageID string) (*Turn, error)
	// FirstNarratorAtOrAfter finds the first narrator turn with id >= turnID.
	FirstNarratorAtOrAfter(ctx context.Context, campaignID string, turnID int64) (*Turn, error)
	// DeleteAfter deletes every turn with id > turnID in the campaign,
	// optionally restricted to a set of session ids for channel-scoped
	// rewind, and returns the count deleted.
	DeleteAfter(ctx context.Context, campaignID string, turnID int64, sessionIDs []string) (int, error)
	// NarratorIDsAfter returns the ids of every narrator turn with id > turnID
	// in the campaign, optionally restricted to sessionIDs — the exact set of
	// turns DeleteAfter is about to remove that could carry a Snapshot, used
	// by RewindEngine to scope Snapshots().DeleteByTurnIDs identically
	// (spec §4.6 "exactly one snapshot per narrator Turn").
	NarratorIDsAfter(ctx context.Context, campaignID string, turnID int64, sessionIDs []string) ([]int64, error)
	// LatestOfKind returns the most recently created turn of the given kind,
	// used to stamp external message ids post-hoc and for the timer firing
	// race guard (spec §4.5 "Firing").
	LatestOfKind(ctx context.Context, campaignID string, kind TurnKind) (*Turn, error)
	// StampExternalMessageID attaches an external message id to a turn
	// after it has been posted to a presentation surface.
	StampExternalMessageID(ctx context.Context, turnID int64, externalMessageID string) error
	StampExternalUserMessageID(ctx context.Context, turnID int64, externalUserMessageID string) error
}

// SnapshotRepo is the repository contract for Snapshot.
type SnapshotRepo interface {
	Add(ctx context.Context, s *Snapshot) error
	GetByTurnID(ctx context.Context, turnID int64) (*Snapshot, error)
	GetByCampaignTurnID(ctx context.Context, campaignID string, turnID int64) (*Snapshot, error)
	// DeleteByTurnIDs deletes every snapshot in the campaign whose turn id
	// appears in turnIDs and returns the count deleted. Callers scope
	// turnIDs themselves (e.g. via TurnRepo.NarratorIDsAfter) so a
	// channel-scoped rewind never deletes a snapshot belonging to a turn
	// outside the scoped sessions.
	DeleteByTurnIDs(ctx context.Context, campaignID string, turnIDs []int64) (int, error)
}

// TimerRepo is the repository contract for Timer.
type TimerRepo interface {
	GetActiveForCampaign(ctx context.Context, campaignID string) (*Timer, error)
	Get(ctx context.Context, id string) (*Timer, error)
	// Schedule cancels any active timer for the campaign, then inserts a new
	// one in scheduled_unbound status, enforcing the at-most-one-active
	// invariant inside the same transaction (spec §4.5).
	Schedule(ctx context.Context, t *Timer) error
	// AttachMessage transitions an active timer to scheduled_bound and
	// stores the external refs. Returns false (no error) if the timer is
	// not currently active.
	AttachMessage(ctx context.Context, id, externalMessageID, externalChannelID, externalThreadID string) (bool, error)
	// CancelActive transitions every active timer for the campaign to
	// cancelled and returns the count affected.
	CancelActive(ctx context.Context, campaignID string, now time.Time) (int, error)
	// MarkExpired transitions an active timer to expired. Returns false if
	// the timer was not active (idempotence, spec invariant 7).
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)
	// MarkConsumed transitions an expired timer to consumed. Returns false
	// if the timer was not expired.
	MarkConsumed(ctx context.Context, id string) (bool, error)
	// RescheduleDueAt overwrites an active timer's DueAt, used by
	// TimerScheduler to apply the campaign's speed_multiplier to the
	// persisted due_at (spec §4.5 "Speed multiplier").
	RescheduleDueAt(ctx context.Context, id string, dueAt time.Time) error
}

// InflightTurnRepo is the repository contract for ClaimManager's lease rows.
type InflightTurnRepo interface {
	// AcquireOrSteal inserts a new lease, or — on conflict with an existing
	// (campaign, actor) row — overwrites it only if the existing row's
	// ExpiresAt is before now. Returns whether the caller now holds the
	// lease under token.
	AcquireOrSteal(ctx context.Context, campaignID, actorID, token string, now, expiresAt time.Time) (bool, error)
	ValidateToken(ctx context.Context, campaignID, actorID, token string, now time.Time) (bool, error)
	Heartbeat(ctx context.Context, campaignID, actorID, token string, now, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, campaignID, actorID, token string) error
}

// OutboxRepo is the repository contract for the idempotent side-effect log.
type OutboxRepo interface {
	// Add inserts an event. A duplicate (campaign, session_scope,
	// event_type, idempotency_key) is a silent no-op — it neither errors nor
	// changes the existing row (spec invariant 5).
	Add(ctx context.Context, e *OutboxEvent) error
}
