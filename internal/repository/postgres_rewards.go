package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/govpoints-system/internal/model"
)

// ListRewards возвращает позиции каталога по фильтру, отсортированные
// по возрастанию стоимости в баллах.
func (r *PostgresRepository) ListRewards(ctx context.Context, filter model.RewardFilter) ([]model.RewardItem, error) {
	query := `SELECT id, name, description, type, points_cost, stock, is_active, metadata, created_at, updated_at
	          FROM rewards WHERE TRUE`
	var args []any

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active AND stock <> 0"
	}
	if filter.MaxPointsCost > 0 {
		args = append(args, filter.MaxPointsCost)
		query += fmt.Sprintf(" AND points_cost <= $%d", len(args))
	}

	query += " ORDER BY points_cost ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", err)
	}
	defer rows.Close()

	var res []model.RewardItem
	for rows.Next() {
		item, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanReward(row pgx.Row) (*model.RewardItem, error) {
	var (
		item     model.RewardItem
		typ      string
		metaJSON []byte
	)

	err := row.Scan(&item.ID, &item.Name, &item.Description, &typ, &item.PointsCost,
		&item.Stock, &item.IsActive, &metaJSON, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("scan reward: %w", err)
	}

	item.Type = model.RewardType(typ)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode reward metadata: %w", err)
		}
	}

	return &item, nil
}

// GetReward возвращает позицию каталога по идентификатору.
func (r *PostgresRepository) GetReward(ctx context.Context, id string) (*model.RewardItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, description, type, points_cost, stock, is_active, metadata, created_at, updated_at
		 FROM rewards WHERE id = $1`,
		id,
	)
	return scanReward(row)
}

// AddReward добавляет позицию в каталог. Занятый идентификатор — ошибка,
// существующая позиция не перезаписывается.
func (r *PostgresRepository) AddReward(ctx context.Context, item *model.RewardItem) error {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("encode reward metadata: %w", err)
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err = r.pool.Exec(ctx,
		`INSERT INTO rewards (id, name, description, type, points_cost, stock, is_active, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.Name, item.Description, string(item.Type), item.PointsCost,
		item.Stock, item.IsActive, metaJSON, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrRewardExists, item.ID)
		}
		return fmt.Errorf("insert reward: %w", err)
	}

	return nil
}

// UpdateReward частично обновляет позицию каталога и освежает updated_at.
func (r *PostgresRepository) UpdateReward(ctx context.Context, id string, patch model.RewardPatch) (*model.RewardItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT id, name, description, type, points_cost, stock, is_active, metadata, created_at, updated_at
		 FROM rewards WHERE id = $1 FOR UPDATE`,
		id,
	)
	item, err := scanReward(row)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.PointsCost != nil {
		item.PointsCost = *patch.PointsCost
	}
	if patch.Stock != nil {
		item.Stock = *patch.Stock
	}
	if patch.IsActive != nil {
		item.IsActive = *patch.IsActive
	}
	if patch.Metadata != nil {
		item.Metadata = *patch.Metadata
	}
	item.UpdatedAt = time.Now().UTC()

	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode reward metadata: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE rewards
		 SET name = $2, description = $3, points_cost = $4, stock = $5, is_active = $6, metadata = $7, updated_at = $8
		 WHERE id = $1`,
		item.ID, item.Name, item.Description, item.PointsCost, item.Stock, item.IsActive, metaJSON, item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return item, nil
}

// CreateRedemption проводит обмен баллов на вознаграждение одной транзакцией:
// проверки позиции в фиксированном порядке, списание баллов, уменьшение
// запаса, учёт в пуле и запись обмена со статусом pending.
func (r *PostgresRepository) CreateRedemption(ctx context.Context, wallet, rewardID string) (*model.Redemption, error) {
	var result *model.Redemption

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			name     string
			typ      string
			cost     int64
			stock    int64
			isActive bool
		)
		err = tx.QueryRow(ctx,
			`SELECT name, type, points_cost, stock, is_active FROM rewards WHERE id = $1 FOR UPDATE`,
			rewardID,
		).Scan(&name, &typ, &cost, &stock, &isActive)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
			}
			return fmt.Errorf("lock reward: %w", err)
		}

		// Порядок проверок фиксирован: активность, запас, затем баланс.
		if !isActive {
			return fmt.Errorf("%w: %s", ErrRewardInactive, rewardID)
		}
		if stock == 0 {
			return fmt.Errorf("%w: %s", ErrOutOfStock, rewardID)
		}

		if _, err := debitPointsTx(ctx, tx, wallet, cost, model.RedeemReason(name)); err != nil {
			return err
		}

		if stock > 0 {
			_, err = tx.Exec(ctx, `UPDATE rewards SET stock = stock - 1 WHERE id = $1`, rewardID)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `UPDATE reward_pool SET distributed = distributed + $1 WHERE id`, cost)
		if err != nil {
			return fmt.Errorf("update pool: %w", err)
		}

		now := time.Now().UTC()
		red := &model.Redemption{
			ID:          uuid.NewString(),
			Wallet:      wallet,
			RewardID:    rewardID,
			RewardName:  name,
			RewardType:  model.RewardType(typ),
			PointsSpent: cost,
			Status:      model.RedemptionPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO redemptions (id, wallet, reward_id, reward_name, reward_type, points_spent, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			red.ID, red.Wallet, red.RewardID, red.RewardName, string(red.RewardType),
			red.PointsSpent, string(red.Status), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		result = red
		return nil
	})

	return result, err
}

// MarkRedemptionProcessing переводит обмен из pending в processing.
func (r *PostgresRepository) MarkRedemptionProcessing(ctx context.Context, id string) (*model.Redemption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	red, err := lockRedemption(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if red.Status != model.RedemptionPending {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadyProcessed, red.Status)
	}

	red.Status = model.RedemptionProcessing
	red.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx,
		`UPDATE redemptions SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(red.Status), red.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return red, nil
}

// FinishRedemption фиксирует результат исполнения обмена: completed с данными
// исполнения либо failed с текстом ошибки. Баллы при неудаче не возвращаются,
// возврат выполняется только явной отменой.
func (r *PostgresRepository) FinishRedemption(ctx context.Context, id string, fulfillment *model.Fulfillment, errMsg string) (*model.Redemption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	red, err := lockRedemption(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	red.UpdatedAt = now

	if errMsg != "" {
		red.Status = model.RedemptionFailed
		red.ErrorMsg = errMsg
	} else {
		red.Status = model.RedemptionCompleted
		red.Fulfillment = fulfillment
		red.CompletedAt = &now
	}

	var txHash, deliveryCode *string
	if red.Fulfillment != nil {
		if red.Fulfillment.TxHash != "" {
			txHash = &red.Fulfillment.TxHash
		}
		if red.Fulfillment.DeliveryCode != "" {
			deliveryCode = &red.Fulfillment.DeliveryCode
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE redemptions
		 SET status = $2, tx_hash = $3, delivery_code = $4, error_message = $5, updated_at = $6, completed_at = $7
		 WHERE id = $1`,
		id, string(red.Status), txHash, deliveryCode, red.ErrorMsg, now, red.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return red, nil
}

// CancelRedemption отменяет обмен: возвращает баллы бонусной операцией,
// восстанавливает единицу запаса конечной позиции и корректирует пул.
// Завершённый обмен отменить нельзя.
func (r *PostgresRepository) CancelRedemption(ctx context.Context, id string) (*model.Redemption, error) {
	var result *model.Redemption

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		red, err := lockRedemption(ctx, tx, id)
		if err != nil {
			return err
		}

		switch red.Status {
		case model.RedemptionCompleted:
			return fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
		case model.RedemptionCancelled:
			return fmt.Errorf("%w: %s", ErrAlreadyCancelled, id)
		}

		// Позиция каталога блокируется раньше счёта — тот же порядок,
		// что и при создании обмена.
		var stock int64
		err = tx.QueryRow(ctx,
			`SELECT stock FROM rewards WHERE id = $1 FOR UPDATE`,
			red.RewardID,
		).Scan(&stock)
		rewardExists := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock reward: %w", err)
		}

		if _, err := creditBonusTx(ctx, tx, red.Wallet, red.PointsSpent, model.RefundReason(red.RewardName)); err != nil {
			return err
		}

		if rewardExists && stock >= 0 {
			_, err = tx.Exec(ctx, `UPDATE rewards SET stock = stock + 1 WHERE id = $1`, red.RewardID)
			if err != nil {
				return fmt.Errorf("restore stock: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `UPDATE reward_pool SET distributed = distributed - $1 WHERE id`, red.PointsSpent)
		if err != nil {
			return fmt.Errorf("update pool: %w", err)
		}

		red.Status = model.RedemptionCancelled
		red.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx,
			`UPDATE redemptions SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(red.Status), red.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update redemption: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		result = red
		return nil
	})

	return result, err
}

func lockRedemption(ctx context.Context, tx pgx.Tx, id string) (*model.Redemption, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, wallet, reward_id, reward_name, reward_type, points_spent, status, tx_hash, delivery_code, error_message, created_at, updated_at, completed_at
		 FROM redemptions WHERE id = $1 FOR UPDATE`,
		id,
	)
	return scanRedemption(row)
}

func scanRedemption(row pgx.Row) (*model.Redemption, error) {
	var (
		red          model.Redemption
		typ          string
		status       string
		txHash       *string
		deliveryCode *string
	)

	err := row.Scan(&red.ID, &red.Wallet, &red.RewardID, &red.RewardName, &typ,
		&red.PointsSpent, &status, &txHash, &deliveryCode, &red.ErrorMsg,
		&red.CreatedAt, &red.UpdatedAt, &red.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("scan redemption: %w", err)
	}

	red.RewardType = model.RewardType(typ)
	red.Status = model.RedemptionStatus(status)
	if txHash != nil || deliveryCode != nil {
		red.Fulfillment = &model.Fulfillment{}
		if txHash != nil {
			red.Fulfillment.TxHash = *txHash
		}
		if deliveryCode != nil {
			red.Fulfillment.DeliveryCode = *deliveryCode
		}
	}

	return &red, nil
}

// GetRedemption возвращает запись обмена по идентификатору.
func (r *PostgresRepository) GetRedemption(ctx context.Context, id string) (*model.Redemption, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, wallet, reward_id, reward_name, reward_type, points_spent, status, tx_hash, delivery_code, error_message, created_at, updated_at, completed_at
		 FROM redemptions WHERE id = $1`,
		id,
	)
	return scanRedemption(row)
}

// RedemptionsByWallet возвращает историю обменов кошелька, новые записи первыми.
func (r *PostgresRepository) RedemptionsByWallet(ctx context.Context, wallet string, limit int) ([]model.Redemption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, wallet, reward_id, reward_name, reward_type, points_spent, status, tx_hash, delivery_code, error_message, created_at, updated_at, completed_at
		 FROM redemptions
		 WHERE wallet = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		wallet, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select redemptions: %w", err)
	}
	defer rows.Close()

	return collectRedemptions(rows)
}

// ListRedemptions возвращает историю обменов по фильтру, новые записи первыми.
func (r *PostgresRepository) ListRedemptions(ctx context.Context, filter model.RedemptionFilter) ([]model.Redemption, error) {
	query := `SELECT id, wallet, reward_id, reward_name, reward_type, points_spent, status, tx_hash, delivery_code, error_message, created_at, updated_at, completed_at
	          FROM redemptions WHERE TRUE`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND reward_type = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select redemptions: %w", err)
	}
	defer rows.Close()

	return collectRedemptions(rows)
}

func collectRedemptions(rows pgx.Rows) ([]model.Redemption, error) {
	var res []model.Redemption
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *red)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// RedemptionStatsSummary возвращает сводные показатели по обменам.
func (r *PostgresRepository) RedemptionStatsSummary(ctx context.Context) (*RedemptionStats, error) {
	stats := &RedemptionStats{
		ByStatus: make(map[model.RedemptionStatus]int64),
		ByType:   make(map[model.RewardType]int64),
	}

	rows, err := r.pool.Query(ctx, `SELECT status, reward_type, COUNT(*) FROM redemptions GROUP BY status, reward_type`)
	if err != nil {
		return nil, fmt.Errorf("count redemptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			typ    string
			count  int64
		)
		if err := rows.Scan(&status, &typ, &count); err != nil {
			return nil, fmt.Errorf("scan redemption count: %w", err)
		}
		stats.Total += count
		stats.ByStatus[model.RedemptionStatus(status)] += count
		stats.ByType[model.RewardType(typ)] += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}

// GetPool возвращает состояние пула вознаграждений.
func (r *PostgresRepository) GetPool(ctx context.Context) (*model.RewardPool, error) {
	var pool model.RewardPool
	err := r.pool.QueryRow(ctx,
		`SELECT total_budget, distributed FROM reward_pool WHERE id`,
	).Scan(&pool.TotalBudget, &pool.Distributed)
	if err != nil {
		return nil, fmt.Errorf("select pool: %w", err)
	}

	pool.Remaining = pool.TotalBudget - pool.Distributed
	return &pool, nil
}

// IncreaseBudget увеличивает общий бюджет пула вознаграждений.
func (r *PostgresRepository) IncreaseBudget(ctx context.Context, amount int64) (*model.RewardPool, error) {
	var pool model.RewardPool
	err := r.pool.QueryRow(ctx,
		`UPDATE reward_pool SET total_budget = total_budget + $1 WHERE id RETURNING total_budget, distributed`,
		amount,
	).Scan(&pool.TotalBudget, &pool.Distributed)
	if err != nil {
		return nil, fmt.Errorf("update pool: %w", err)
	}

	pool.Remaining = pool.TotalBudget - pool.Distributed
	return &pool, nil
}

// ReconcilePool пересчитывает распределённые баллы по журналу обменов.
// Служебная проверка целостности, в основном потоке не используется.
func (r *PostgresRepository) ReconcilePool(ctx context.Context) (*model.RewardPool, error) {
	var pool model.RewardPool
	err := r.pool.QueryRow(ctx,
		`UPDATE reward_pool
		 SET distributed = (SELECT COALESCE(SUM(points_spent), 0) FROM redemptions WHERE status <> 'cancelled')
		 WHERE id
		 RETURNING total_budget, distributed`,
	).Scan(&pool.TotalBudget, &pool.Distributed)
	if err != nil {
		return nil, fmt.Errorf("reconcile pool: %w", err)
	}

	pool.Remaining = pool.TotalBudget - pool.Distributed
	return &pool, nil
}
