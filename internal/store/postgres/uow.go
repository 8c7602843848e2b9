package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arcfable/campaignforge/internal/store"
	"github.com/arcfable/campaignforge/internal/uow"
)

// NewFactory returns a uow.Factory that opens one pgx transaction per unit
// of work, grounded on original_source/persistence/sqlalchemy/uow.py's
// SqlAlchemyUnitOfWork (begin on entry, commit/rollback exactly once).
func NewFactory(s *Store) uow.Factory {
	return func(ctx context.Context) (uow.UnitOfWork, error) {
		tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return nil, err
		}
		return &unitOfWork{tx: tx}, nil
	}
}

type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) Campaigns() store.CampaignRepo   { return &campaignRepo{q: u.tx} }
func (u *unitOfWork) Actors() store.ActorRepo         { return &actorRepo{q: u.tx} }
func (u *unitOfWork) Sessions() store.SessionRepo     { return &sessionRepo{q: u.tx} }
func (u *unitOfWork) Players() store.PlayerRepo       { return &playerRepo{q: u.tx} }
func (u *unitOfWork) Turns() store.TurnRepo           { return &turnRepo{q: u.tx} }
func (u *unitOfWork) Snapshots() store.SnapshotRepo   { return &snapshotRepo{q: u.tx} }
func (u *unitOfWork) Timers() store.TimerRepo         { return &timerRepo{q: u.tx} }
func (u *unitOfWork) Inflight() store.InflightTurnRepo { return &inflightRepo{q: u.tx} }
func (u *unitOfWork) Outbox() store.OutboxRepo        { return &outboxRepo{q: u.tx} }

func (u *unitOfWork) Commit(ctx context.Context) error   { return u.tx.Commit(ctx) }
func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}

// querier is the subset of pgx.Tx every repository needs; satisfied by both
// pgx.Tx and *pgxpool.Pool, so repositories never care which one they got.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
