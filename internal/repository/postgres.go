package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/govpoints-system/internal/model"
	"github.com/mmeshcher/govpoints-system/internal/points"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий, инициализирует схему БД
// через миграции и заводит строку пула вознаграждений с указанным бюджетом.
func NewPostgresRepository(dsn string, initialBudget int64) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO reward_pool (id, total_budget) VALUES (TRUE, $1) ON CONFLICT (id) DO NOTHING`,
		initialBudget,
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init reward pool: %w", err)
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetOrCreateAccount возвращает счёт баллов кошелька, при отсутствии создаёт
// пустой счёт первого уровня.
func (r *PostgresRepository) GetOrCreateAccount(ctx context.Context, wallet string) (*model.PointsAccount, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (wallet) VALUES ($1) ON CONFLICT (wallet) DO NOTHING`,
		wallet,
	)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT wallet, total_points, available_points, redeemed_points, level, streak, last_activity_at, created_at
		 FROM accounts
		 WHERE wallet = $1`,
		wallet,
	)

	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*model.PointsAccount, error) {
	var (
		a            model.PointsAccount
		lastActivity *time.Time
	)

	err := row.Scan(&a.Wallet, &a.TotalPoints, &a.AvailablePoints, &a.RedeemedPoints,
		&a.Level, &a.Streak, &lastActivity, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if lastActivity != nil {
		a.LastActivityAt = *lastActivity
	}

	return &a, nil
}

// AwardVote начисляет баллы за подтверждённый голос. Строка счёта блокируется
// на время транзакции: серия дней, уровень и баланс меняются атомарно.
func (r *PostgresRepository) AwardVote(ctx context.Context, award VoteAward) (*model.PointTransaction, error) {
	var result *model.PointTransaction

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (wallet) VALUES ($1) ON CONFLICT (wallet) DO NOTHING`,
			award.Wallet,
		)
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}

		var (
			total        int64
			streak       int
			lastActivity *time.Time
		)
		err = tx.QueryRow(ctx,
			`SELECT total_points, streak, last_activity_at FROM accounts WHERE wallet = $1 FOR UPDATE`,
			award.Wallet,
		).Scan(&total, &streak, &lastActivity)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		now := time.Now().UTC()

		last := time.Time{}
		if lastActivity != nil {
			last = *lastActivity
		}

		newStreak := points.AdvanceStreak(last, now, streak)
		breakdown := points.ComputeAward(award.Base, award.EarlyVote, newStreak)
		newTotal := total + breakdown.Total

		_, err = tx.Exec(ctx,
			`UPDATE accounts
			 SET total_points = total_points + $2,
			     available_points = available_points + $2,
			     level = $3,
			     streak = $4,
			     last_activity_at = $5
			 WHERE wallet = $1`,
			award.Wallet, breakdown.Total, points.LevelFor(newTotal), newStreak, now,
		)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}

		trx := &model.PointTransaction{
			ID:     uuid.NewString(),
			Wallet: award.Wallet,
			Kind:   model.TransactionEarn,
			Amount: breakdown.Total,
			Reason: award.Reason,
			Metadata: &model.EarnMetadata{
				ProposalID:     award.ProposalID,
				DAOID:          award.DAOID,
				DAOTier:        award.DAOTier,
				EarlyVoteBonus: award.EarlyVote,
				StreakBonus:    breakdown.StreakPercent,
			},
			CreatedAt: now,
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO transactions (id, wallet, kind, amount, reason, proposal_id, dao_id, dao_tier, early_vote_bonus, streak_bonus, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			trx.ID, trx.Wallet, string(trx.Kind), trx.Amount, trx.Reason,
			award.ProposalID, award.DAOID, award.DAOTier, award.EarlyVote, breakdown.StreakPercent, now,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: proposal %s", ErrDuplicateVote, award.ProposalID)
			}
			return fmt.Errorf("insert transaction: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		result = trx
		return nil
	})

	return result, err
}

// DebitPoints списывает баллы со счёта. Возвращает ErrInsufficientPoints,
// если доступных баллов недостаточно; баланс при этом не меняется.
func (r *PostgresRepository) DebitPoints(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trx, err := debitPointsTx(ctx, tx, wallet, amount, reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return trx, nil
}

// debitPointsTx выполняет списание в рамках уже открытой транзакции.
// Используется и как самостоятельная операция, и как шаг обмена.
func debitPointsTx(ctx context.Context, tx pgx.Tx, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO accounts (wallet) VALUES ($1) ON CONFLICT (wallet) DO NOTHING`,
		wallet,
	)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	var available int64
	err = tx.QueryRow(ctx,
		`SELECT available_points FROM accounts WHERE wallet = $1 FOR UPDATE`,
		wallet,
	).Scan(&available)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}

	if available < amount {
		return nil, fmt.Errorf("%w: available %d, required %d", ErrInsufficientPoints, available, amount)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts
		 SET available_points = available_points - $2,
		     redeemed_points = redeemed_points + $2
		 WHERE wallet = $1`,
		wallet, amount,
	)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	now := time.Now().UTC()
	trx := &model.PointTransaction{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Kind:      model.TransactionRedeem,
		Amount:    -amount,
		Reason:    reason,
		CreatedAt: now,
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, wallet, kind, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		trx.ID, trx.Wallet, string(trx.Kind), trx.Amount, trx.Reason, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	return trx, nil
}

// CreditBonus безусловно начисляет бонусные баллы на счёт кошелька.
// Серия дней и дата активности при этом не меняются.
func (r *PostgresRepository) CreditBonus(ctx context.Context, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trx, err := creditBonusTx(ctx, tx, wallet, amount, reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return trx, nil
}

func creditBonusTx(ctx context.Context, tx pgx.Tx, wallet string, amount int64, reason string) (*model.PointTransaction, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO accounts (wallet) VALUES ($1) ON CONFLICT (wallet) DO NOTHING`,
		wallet,
	)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	var total int64
	err = tx.QueryRow(ctx,
		`SELECT total_points FROM accounts WHERE wallet = $1 FOR UPDATE`,
		wallet,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts
		 SET total_points = total_points + $2,
		     available_points = available_points + $2,
		     level = $3
		 WHERE wallet = $1`,
		wallet, amount, points.LevelFor(total+amount),
	)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	now := time.Now().UTC()
	trx := &model.PointTransaction{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Kind:      model.TransactionBonus,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, wallet, kind, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		trx.ID, trx.Wallet, string(trx.Kind), trx.Amount, trx.Reason, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	return trx, nil
}

// TransactionsByWallet возвращает журнал операций кошелька, новые записи первыми.
func (r *PostgresRepository) TransactionsByWallet(ctx context.Context, wallet string, limit int) ([]model.PointTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, wallet, kind, amount, reason, proposal_id, dao_id, dao_tier, early_vote_bonus, streak_bonus, created_at
		 FROM transactions
		 WHERE wallet = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		wallet, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.PointTransaction
	for rows.Next() {
		var (
			trx         model.PointTransaction
			kind        string
			proposalID  *string
			daoID       *string
			daoTier     *int
			earlyBonus  *bool
			streakBonus *int
		)
		err := rows.Scan(&trx.ID, &trx.Wallet, &kind, &trx.Amount, &trx.Reason,
			&proposalID, &daoID, &daoTier, &earlyBonus, &streakBonus, &trx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		trx.Kind = model.TransactionKind(kind)
		if trx.Kind == model.TransactionEarn {
			meta := &model.EarnMetadata{}
			if proposalID != nil {
				meta.ProposalID = *proposalID
			}
			if daoID != nil {
				meta.DAOID = *daoID
			}
			if daoTier != nil {
				meta.DAOTier = *daoTier
			}
			if earlyBonus != nil {
				meta.EarlyVoteBonus = *earlyBonus
			}
			if streakBonus != nil {
				meta.StreakBonus = *streakBonus
			}
			trx.Metadata = meta
		}

		res = append(res, trx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Leaderboard возвращает счета с наибольшим числом заработанных баллов.
// При равенстве баллов раньше идёт счёт, созданный раньше.
func (r *PostgresRepository) Leaderboard(ctx context.Context, limit int) ([]model.PointsAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT wallet, total_points, available_points, redeemed_points, level, streak, last_activity_at, created_at
		 FROM accounts
		 ORDER BY total_points DESC, seq ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var res []model.PointsAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AccountStatsSummary возвращает сводные показатели по всем счетам.
func (r *PostgresRepository) AccountStatsSummary(ctx context.Context) (*AccountStats, error) {
	stats := &AccountStats{ByLevel: make(map[int]int64)}

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_points), 0), COALESCE(SUM(redeemed_points), 0) FROM accounts`,
	).Scan(&stats.Accounts, &stats.TotalPoints, &stats.RedeemedPoints)
	if err != nil {
		return nil, fmt.Errorf("sum accounts: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT level, COUNT(*) FROM accounts GROUP BY level`)
	if err != nil {
		return nil, fmt.Errorf("count by level: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			level int
			count int64
		)
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		stats.ByLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE kind = 'earn' AND proposal_id IS NOT NULL`,
	).Scan(&stats.Votes)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}

	return stats, nil
}
