package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// maxTxAttempts はシリアライズ失敗時にトランザクションを試行する最大回数。
const maxTxAttempts = 3

// PostgresStore はPostgreSQLを使用したStore実装。
// トランザクション外では*sql.DB、WithinTx内では*sql.Txに束縛される。
type PostgresStore struct {
	db   *sql.DB
	q    DBTX
	inTx bool
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// Users はユーザーリポジトリを返す。
func (s *PostgresStore) Users() UserRepository { return NewPostgresUserRepo(s.q) }

// Schedules はクラス枠リポジトリを返す。
func (s *PostgresStore) Schedules() ScheduleRepository { return NewPostgresScheduleRepo(s.q) }

// Bookings は予約リポジトリを返す。
func (s *PostgresStore) Bookings() BookingRepository { return NewPostgresBookingRepo(s.q) }

// Sessions はリフレッシュセッションリポジトリを返す。
func (s *PostgresStore) Sessions() SessionRepository { return NewPostgresSessionRepo(s.q) }

// WithinTx はfnをSERIALIZABLE分離レベルのトランザクションで実行する。
// シリアライズ失敗・デッドロック検出時はmaxTxAttempts回まで全体を再実行する。
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		slog.Warn("トランザクションを再実行します",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &PostgresStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
