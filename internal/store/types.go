// Package store declares the persistent data model and repository contracts
// for the turn-resolution engine: campaigns, actors, players, turns,
// snapshots, timers, in-flight claims, sessions and the outbox. Postgres
// implementations live in internal/store/postgres.
package store

import (
	"encoding/json"
	"time"
)

// Document is an untyped JSON object used for campaign/player/character
// state. It is shallow-merged by internal/mutate, never deep-merged.
type Document map[string]any

// Clone returns a shallow copy safe to mutate independently of the original.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// MarshalJSON round-trips through encoding/json so store implementations can
// hand a Document directly to a jsonb column parameter.
func (d Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(d))
}

// InventoryItem is one entry of a player's state.inventory list.
type InventoryItem struct {
	Name   string `json:"name"`
	Origin string `json:"origin"`
}

// TimerStatus is the closed enum of Timer.status.
type TimerStatus string

const (
	TimerScheduledUnbound TimerStatus = "scheduled_unbound"
	TimerScheduledBound   TimerStatus = "scheduled_bound"
	TimerCancelled        TimerStatus = "cancelled"
	TimerExpired          TimerStatus = "expired"
	TimerConsumed         TimerStatus = "consumed"
)

// ActiveTimerStatuses are the statuses counted by the at-most-one-active
// partial unique index (spec §3, §4.5).
var ActiveTimerStatuses = []TimerStatus{TimerScheduledUnbound, TimerScheduledBound}

// TurnKind is the closed enum of Turn.kind.
type TurnKind string

const (
	TurnKindPlayer   TurnKind = "player"
	TurnKindNarrator TurnKind = "narrator"
	TurnKindSystem   TurnKind = "system"
)

// Campaign is the aggregate root. Every mutation is CAS'd on RowVersion.
type Campaign struct {
	ID                     string
	Namespace              string
	Name                   string
	NameNormalized         string
	CreatedByActorID       string
	Summary                string
	State                  Document
	Characters             Document
	LastNarration          string
	MemoryVisibleMaxTurnID *int64
	SpeedMultiplier        float64
	RowVersion             int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CampaignUpdate is the set of mutable Campaign columns a CAS commit writes.
// Pointer fields let a caller distinguish "leave unchanged" only at the Go
// layer; the store always writes every field named here (Phase C always
// recomputes all of them, per spec §4.2 step 13).
type CampaignUpdate struct {
	Summary                string
	State                  Document
	Characters             Document
	LastNarration          string
	MemoryVisibleMaxTurnID *int64
}

// Actor identifies a human or system participant.
type Actor struct {
	ID          string
	DisplayName string
	Kind        string
	Metadata    Document
	CreatedAt   time.Time
}

// ActorExternalRef maps an external identity (e.g. a Discord user id) to an
// Actor, unique per (provider, external_id).
type ActorExternalRef struct {
	ActorID    string
	Provider   string
	ExternalID string
}

// Session scopes a campaign to a presentation surface (e.g. a Discord
// channel/thread). Used only to resolve channel-scoped rewind (spec §4.6
// step 5); the engine core never reads SurfaceKey itself.
type Session struct {
	ID               string
	CampaignID       string
	Surface          string
	SurfaceKey       string
	SurfaceGuildID   string
	SurfaceChannelID string
	SurfaceThreadID  string
	Enabled          bool
	Metadata         Document
	CreatedAt        time.Time
}

// Player is unique per (campaign, actor).
type Player struct {
	CampaignID   string
	ActorID      string
	Level        int
	XP           int
	Attributes   Document
	State        Document
	LastActiveAt *time.Time
}

// Turn is an append-only log entry. IDs increase monotonically per store.
type Turn struct {
	ID                  int64
	CampaignID          string
	SessionID           *string
	ActorID             *string
	Kind                TurnKind
	Content             string
	Meta                Document
	ExternalMessageID   *string
	ExternalUserMsgID   *string
	CreatedAt           time.Time
}

// PlayerSnapshot is the value-copy of one player's mutable fields carried by
// a Snapshot, for restoration on rewind.
type PlayerSnapshot struct {
	ActorID    string
	Level      int
	XP         int
	Attributes Document
	State      Document
}

// Snapshot carries the full post-state needed to rewind to the narrator Turn
// it is keyed on. Exactly one per narrator Turn; player turns have none.
type Snapshot struct {
	ID                   string
	TurnID               int64
	CampaignID           string
	CampaignState        Document
	CampaignCharacters   Document
	CampaignSummary      string
	CampaignLastNarration string
	Players              []PlayerSnapshot
	CreatedAt            time.Time
}

// Timer is a scheduled or historical countdown event for a campaign.
type Timer struct {
	ID                string
	CampaignID        string
	SessionID         *string
	Status            TimerStatus
	EventText         string
	Interruptible     bool
	InterruptAction   *string
	DueAt             time.Time
	FiredAt           *time.Time
	CancelledAt       *time.Time
	ExternalMessageID *string
	ExternalChannelID *string
	ExternalThreadID  *string
	Meta              Document
	CreatedAt         time.Time
}

// InflightTurn is the lease row backing ClaimManager, unique per
// (campaign, actor).
type InflightTurn struct {
	ID          string
	CampaignID  string
	ActorID     string
	ClaimToken  string
	ClaimedAt   time.Time
	HeartbeatAt time.Time
	ExpiresAt   time.Time
}

// OutboxEvent is a durable, idempotency-keyed side-effect record.
type OutboxEvent struct {
	ID             string
	CampaignID     string
	SessionScope   string
	EventType      string
	IdempotencyKey string
	Payload        Document
	Status         string
	Attempts       int
	NextAttemptAt  *time.Time
	CreatedAt      time.Time
}

// NoneSessionScope is OutboxEvent.SessionScope's default when an event is not
// scoped to a particular session, mirroring the Python original's
// "__none__" sentinel (original_source/persistence/sqlalchemy/models.py).
const NoneSessionScope = "__none__"
