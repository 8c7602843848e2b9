// Package storetest provides an in-memory store.* implementation for unit
// tests of internal/claim, internal/turn, internal/rewind and
// internal/timer that exercise retry/CAS/idempotency logic without a real
// database. The Postgres-backed repositories have no tests in this module;
// postgrestest provides the harness for them.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/uow"
)

// DB is the shared in-memory state backing the store. Each opened unit of
// work (see Factory) works against its own clone and only publishes writes
// back to DB on Commit, so a caller that returns an error (or calls
// Rollback) leaves DB exactly as it found it.
type DB struct {
	mu sync.Mutex

	Campaigns map[string]*store.Campaign
	Actors    map[string]*store.Actor
	Sessions  map[string]*store.Session
	Players   map[string]*store.Player // key: campaignID + "/" + actorID
	Turns     []*store.Turn
	Snapshots []*store.Snapshot
	Timers    map[string]*store.Timer
	Inflight  map[string]*store.InflightTurn // key: campaignID + "/" + actorID
	Outbox    []*store.OutboxEvent

	nextTurnID int64
}

func New() *DB {
	return &DB{
		Campaigns: map[string]*store.Campaign{},
		Actors:    map[string]*store.Actor{},
		Sessions:  map[string]*store.Session{},
		Players:   map[string]*store.Player{},
		Timers:    map[string]*store.Timer{},
		Inflight:  map[string]*store.InflightTurn{},
		nextTurnID: 1,
	}
}

// Factory returns a uow.Factory over db. Each opened unit of work works
// against a snapshot copy of db and only publishes its writes back to db on
// Commit, so a run that errors (or that the caller rolls back) leaves db
// untouched — the same all-or-nothing behavior a real Postgres transaction
// gives internal/turn's phase C.
func (db *DB) Factory() uow.Factory {
	return func(ctx context.Context) (uow.UnitOfWork, error) {
		db.mu.Lock()
		work := db.clone()
		db.mu.Unlock()
		return &fakeUOW{live: db, work: work}, nil
	}
}

func (db *DB) clone() *DB {
	cp := &DB{
		Campaigns:  map[string]*store.Campaign{},
		Actors:     map[string]*store.Actor{},
		Sessions:   map[string]*store.Session{},
		Players:    map[string]*store.Player{},
		Timers:     map[string]*store.Timer{},
		Inflight:   map[string]*store.InflightTurn{},
		nextTurnID: db.nextTurnID,
	}
	for k, v := range db.Campaigns {
		c := *v
		cp.Campaigns[k] = &c
	}
	for k, v := range db.Actors {
		a := *v
		cp.Actors[k] = &a
	}
	for k, v := range db.Sessions {
		s := *v
		cp.Sessions[k] = &s
	}
	for k, v := range db.Players {
		p := *v
		cp.Players[k] = &p
	}
	for k, v := range db.Timers {
		t := *v
		cp.Timers[k] = &t
	}
	for k, v := range db.Inflight {
		i := *v
		cp.Inflight[k] = &i
	}
	for _, t := range db.Turns {
		tc := *t
		cp.Turns = append(cp.Turns, &tc)
	}
	for _, s := range db.Snapshots {
		sc := *s
		cp.Snapshots = append(cp.Snapshots, &sc)
	}
	for _, e := range db.Outbox {
		ec := *e
		cp.Outbox = append(cp.Outbox, &ec)
	}
	return cp
}

// publish copies work's state back onto live, under live's lock.
func (work *DB) publish(live *DB) {
	live.mu.Lock()
	defer live.mu.Unlock()
	live.Campaigns = work.Campaigns
	live.Actors = work.Actors
	live.Sessions = work.Sessions
	live.Players = work.Players
	live.Timers = work.Timers
	live.Inflight = work.Inflight
	live.Turns = work.Turns
	live.Snapshots = work.Snapshots
	live.Outbox = work.Outbox
	live.nextTurnID = work.nextTurnID
}

func playerKey(campaignID, actorID string) string { return campaignID + "/" + actorID }

// fakeUOW operates against work (a snapshot taken at open time) and only
// publishes work back onto live when Commit is called.
type fakeUOW struct {
	live *DB
	work *DB
}

func (u *fakeUOW) Campaigns() store.CampaignRepo    { return &fakeCampaignRepo{u.work} }
func (u *fakeUOW) Actors() store.ActorRepo          { return &fakeActorRepo{u.work} }
func (u *fakeUOW) Sessions() store.SessionRepo      { return &fakeSessionRepo{u.work} }
func (u *fakeUOW) Players() store.PlayerRepo        { return &fakePlayerRepo{u.work} }
func (u *fakeUOW) Turns() store.TurnRepo            { return &fakeTurnRepo{u.work} }
func (u *fakeUOW) Snapshots() store.SnapshotRepo    { return &fakeSnapshotRepo{u.work} }
func (u *fakeUOW) Timers() store.TimerRepo          { return &fakeTimerRepo{u.work} }
func (u *fakeUOW) Inflight() store.InflightTurnRepo { return &fakeInflightRepo{u.work} }
func (u *fakeUOW) Outbox() store.OutboxRepo         { return &fakeOutboxRepo{u.work} }

func (u *fakeUOW) Commit(ctx context.Context) error {
	u.work.publish(u.live)
	return nil
}
func (u *fakeUOW) Rollback(ctx context.Context) error { return nil }

// --- Campaigns ---

type fakeCampaignRepo struct{ db *DB }

func (r *fakeCampaignRepo) Get(ctx context.Context, id string) (*store.Campaign, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.Campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) GetByName(ctx context.Context, namespace, nameNormalized string) (*store.Campaign, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.Campaigns {
		if c.Namespace == namespace && c.NameNormalized == nameNormalized {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeCampaignRepo) Create(ctx context.Context, c *store.Campaign) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.RowVersion = 1
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	r.db.Campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) CASApplyUpdate(ctx context.Context, id string, expectedRowVersion int64, upd store.CampaignUpdate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.Campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.RowVersion != expectedRowVersion {
		return store.ErrConcurrentModification
	}
	c.Summary = upd.Summary
	c.State = upd.State
	c.Characters = upd.Characters
	c.LastNarration = upd.LastNarration
	c.MemoryVisibleMaxTurnID = upd.MemoryVisibleMaxTurnID
	c.RowVersion++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Actors ---

type fakeActorRepo struct{ db *DB }

func (r *fakeActorRepo) Get(ctx context.Context, id string) (*store.Actor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.Actors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeActorRepo) ResolveExternalRef(ctx context.Context, provider, externalID string) (*store.Actor, error) {
	return nil, store.ErrNotFound
}

// --- Sessions ---

type fakeSessionRepo struct{ db *DB }

func (r *fakeSessionRepo) Get(ctx context.Context, id string) (*store.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.Sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) SessionIDsForSurface(ctx context.Context, campaignID, surfaceRef string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []string
	for _, s := range r.db.Sessions {
		if s.CampaignID != campaignID {
			continue
		}
		if s.SurfaceChannelID == surfaceRef || s.SurfaceThreadID == surfaceRef || s.SurfaceKey == surfaceRef {
			out = append(out, s.ID)
		}
	}
	return out, nil
}

// --- Players ---

type fakePlayerRepo struct{ db *DB }

func (r *fakePlayerRepo) GetByCampaignActor(ctx context.Context, campaignID, actorID string) (*store.Player, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.Players[playerKey(campaignID, actorID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	cp.State = p.State.Clone()
	cp.Attributes = p.Attributes.Clone()
	return &cp, nil
}

func (r *fakePlayerRepo) UpsertLazy(ctx context.Context, campaignID, actorID string) (*store.Player, error) {
	r.db.mu.Lock()
	key := playerKey(campaignID, actorID)
	p, ok := r.db.Players[key]
	if !ok {
		p = &store.Player{CampaignID: campaignID, ActorID: actorID, Level: 1, State: store.Document{}, Attributes: store.Document{}}
		r.db.Players[key] = p
	}
	cp := *p
	r.db.mu.Unlock()
	return &cp, nil
}

func (r *fakePlayerRepo) Update(ctx context.Context, p *store.Player) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *p
	r.db.Players[playerKey(p.CampaignID, p.ActorID)] = &cp
	return nil
}

func (r *fakePlayerRepo) ListByCampaign(ctx context.Context, campaignID string) ([]store.Player, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []store.Player
	for _, p := range r.db.Players {
		if p.CampaignID == campaignID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePlayerRepo) RestoreFromSnapshot(ctx context.Context, campaignID string, players []store.PlayerSnapshot) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, ps := range players {
		key := playerKey(campaignID, ps.ActorID)
		p, ok := r.db.Players[key]
		if !ok {
			p = &store.Player{CampaignID: campaignID, ActorID: ps.ActorID}
			r.db.Players[key] = p
		}
		p.Level, p.XP, p.Attributes, p.State = ps.Level, ps.XP, ps.Attributes, ps.State
	}
	return nil
}

// --- Turns ---

type fakeTurnRepo struct{ db *DB }

func (r *fakeTurnRepo) Add(ctx context.Context, t *store.Turn) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t.ID = r.db.nextTurnID
	r.db.nextTurnID++
	cp := *t
	r.db.Turns = append(r.db.Turns, &cp)
	return t.ID, nil
}

func (r *fakeTurnRepo) Recent(ctx context.Context, campaignID string, limit int) ([]store.Turn, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []store.Turn
	for _, t := range r.db.Turns {
		if t.CampaignID == campaignID {
			out = append(out, *t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeTurnRepo) Get(ctx context.Context, campaignID string, turnID int64) (*store.Turn, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.Turns {
		if t.CampaignID == campaignID && t.ID == turnID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeTurnRepo) GetByExternalMessageID(ctx context.Context, campaignID, externalMessageID string) (*store.Turn, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.Turns {
		if t.CampaignID == campaignID && t.Kind == store.TurnKindNarrator && t.ExternalMessageID != nil && *t.ExternalMessageID == externalMessageID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeTurnRepo) GetByExternalUserMessageID(ctx context.Context, campaignID, externalUserMessageID string) (*store.Turn, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.Turns {
		if t.CampaignID == campaignID && t.ExternalUserMsgID != nil && *t.ExternalUserMsgID == externalUserMessageID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeTurnRepo) FirstNarratorAtOrAfter(ctx context.Context, campaignID string, turnID int64) (*store.Turn, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.Turns {
		if t.CampaignID == campaignID && t.Kind == store.TurnKindNarrator && t.ID >= turnID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeTurnRepo) DeleteAfter(ctx context.Context, campaignID string, turnID int64, sessionIDs []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	scoped := map[string]bool{}
	for _, id := range sessionIDs {
		scoped[id] = true
	}
	var kept []*store.Turn
	deleted := 0
	for _, t := range r.db.Turns {
		if t.CampaignID == campaignID && t.ID > turnID {
			if len(sessionIDs) == 0 || (t.SessionID != nil && scoped[*t.SessionID]) {
				deleted++
				continue
			}
		}
		kept = append(kept, t)
	}
	r.db.Turns = kept
	return deleted, nil
}

func (r *fakeTurnRepo) NarratorIDsAfter(ctx context.Context, campaignID string, turnID int64, sessionIDs []string) ([]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	scoped := map[string]bool{}
	for _, id := range sessionIDs {
		scoped[id] = true
	}
	var ids []int64
	for _, t := range r.db.Turns {
		if t.CampaignID != campaignID || t.Kind != store.TurnKindNarrator || t.ID <= turnID {
			continue
		}
		if len(sessionIDs) == 0 || (t.SessionID != nil && scoped[*t.SessionID]) {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (r *fakeTurnRepo) LatestOfKind(ctx context.Context, campaignID string, kind store.TurnKind) (*store.Turn, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var latest *store.Turn
	for _, t := range r.db.Turns {
		if t.CampaignID == campaignID && t.Kind == kind {
			if latest == nil || t.ID > latest.ID {
				latest = t
			}
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeTurnRepo) StampExternalMessageID(ctx context.Context, turnID int64, externalMessageID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.Turns {
		if t.ID == turnID {
			t.ExternalMessageID = &externalMessageID
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *fakeTurnRepo) StampExternalUserMessageID(ctx context.Context, turnID int64, externalUserMessageID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.Turns {
		if t.ID == turnID {
			t.ExternalUserMsgID = &externalUserMessageID
			return nil
		}
	}
	return store.ErrNotFound
}

// --- Snapshots ---

type fakeSnapshotRepo struct{ db *DB }

func (r *fakeSnapshotRepo) Add(ctx context.Context, s *store.Snapshot) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	cp := *s
	r.db.Snapshots = append(r.db.Snapshots, &cp)
	return nil
}

func (r *fakeSnapshotRepo) GetByTurnID(ctx context.Context, turnID int64) (*store.Snapshot, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.Snapshots {
		if s.TurnID == turnID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeSnapshotRepo) GetByCampaignTurnID(ctx context.Context, campaignID string, turnID int64) (*store.Snapshot, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.Snapshots {
		if s.CampaignID == campaignID && s.TurnID == turnID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeSnapshotRepo) DeleteByTurnIDs(ctx context.Context, campaignID string, turnIDs []int64) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range turnIDs {
		want[id] = true
	}
	var kept []*store.Snapshot
	deleted := 0
	for _, s := range r.db.Snapshots {
		if s.CampaignID == campaignID && want[s.TurnID] {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	r.db.Snapshots = kept
	return deleted, nil
}

// --- Timers ---

type fakeTimerRepo struct{ db *DB }

func (r *fakeTimerRepo) GetActiveForCampaign(ctx context.Context, campaignID string) (*store.Timer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.Timers {
		if t.CampaignID == campaignID && (t.Status == store.TimerScheduledUnbound || t.Status == store.TimerScheduledBound) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeTimerRepo) Get(ctx context.Context, id string) (*store.Timer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.Timers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTimerRepo) Schedule(ctx context.Context, t *store.Timer) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.Timers {
		if existing.CampaignID == t.CampaignID && (existing.Status == store.TimerScheduledUnbound || existing.Status == store.TimerScheduledBound) {
			existing.Status = store.TimerCancelled
		}
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Status = store.TimerScheduledUnbound
	cp := *t
	r.db.Timers[t.ID] = &cp
	return nil
}

func (r *fakeTimerRepo) AttachMessage(ctx context.Context, id, externalMessageID, externalChannelID, externalThreadID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.Timers[id]
	if !ok || t.Status != store.TimerScheduledUnbound {
		return false, nil
	}
	t.Status = store.TimerScheduledBound
	t.ExternalMessageID, t.ExternalChannelID, t.ExternalThreadID = &externalMessageID, &externalChannelID, &externalThreadID
	return true, nil
}

func (r *fakeTimerRepo) CancelActive(ctx context.Context, campaignID string, now time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, t := range r.db.Timers {
		if t.CampaignID == campaignID && (t.Status == store.TimerScheduledUnbound || t.Status == store.TimerScheduledBound) {
			t.Status = store.TimerCancelled
			t.CancelledAt = &now
			n++
		}
	}
	return n, nil
}

func (r *fakeTimerRepo) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.Timers[id]
	if !ok || (t.Status != store.TimerScheduledUnbound && t.Status != store.TimerScheduledBound) {
		return false, nil
	}
	t.Status = store.TimerExpired
	t.FiredAt = &now
	return true, nil
}

func (r *fakeTimerRepo) MarkConsumed(ctx context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.Timers[id]
	if !ok || t.Status != store.TimerExpired {
		return false, nil
	}
	t.Status = store.TimerConsumed
	return true, nil
}

func (r *fakeTimerRepo) RescheduleDueAt(ctx context.Context, id string, dueAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.Timers[id]
	if !ok {
		return store.ErrNotFound
	}
	t.DueAt = dueAt
	return nil
}

// --- Inflight ---

type fakeInflightRepo struct{ db *DB }

func (r *fakeInflightRepo) AcquireOrSteal(ctx context.Context, campaignID, actorID, token string, now, expiresAt time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := playerKey(campaignID, actorID)
	existing, ok := r.db.Inflight[key]
	if ok && !existing.ExpiresAt.Before(now) {
		return false, nil
	}
	r.db.Inflight[key] = &store.InflightTurn{
		ID: uuid.New().String(), CampaignID: campaignID, ActorID: actorID,
		ClaimToken: token, ClaimedAt: now, HeartbeatAt: now, ExpiresAt: expiresAt,
	}
	return true, nil
}

func (r *fakeInflightRepo) ValidateToken(ctx context.Context, campaignID, actorID, token string, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.Inflight[playerKey(campaignID, actorID)]
	if !ok || existing.ClaimToken != token || existing.ExpiresAt.Before(now) {
		return false, nil
	}
	return true, nil
}

func (r *fakeInflightRepo) Heartbeat(ctx context.Context, campaignID, actorID, token string, now, expiresAt time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.Inflight[playerKey(campaignID, actorID)]
	if !ok || existing.ClaimToken != token {
		return false, nil
	}
	existing.HeartbeatAt, existing.ExpiresAt = now, expiresAt
	return true, nil
}

func (r *fakeInflightRepo) Release(ctx context.Context, campaignID, actorID, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := playerKey(campaignID, actorID)
	if existing, ok := r.db.Inflight[key]; ok && existing.ClaimToken == token {
		delete(r.db.Inflight, key)
	}
	return nil
}

// --- Outbox ---

type fakeOutboxRepo struct{ db *DB }

func (r *fakeOutboxRepo) Add(ctx context.Context, e *store.OutboxEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	scope := e.SessionScope
	if scope == "" {
		scope = store.NoneSessionScope
	}
	for _, existing := range r.db.Outbox {
		if existing.CampaignID == e.CampaignID && existing.SessionScope == scope &&
			existing.EventType == e.EventType && existing.IdempotencyKey == e.IdempotencyKey {
			return nil
		}
	}
	e.SessionScope = scope
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	cp := *e
	r.db.Outbox = append(r.db.Outbox, &cp)
	return nil
}
