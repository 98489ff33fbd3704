package postgres

import (
	"context"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

func (r *Repository) CreateBlock(ctx context.Context, block model.Block) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blocked_slots (id, start_time, reason, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, block.ID, block.StartTime, block.Reason, block.CreatedAt)
	if storage.IsUniqueViolation(err, "blocked_slots_start_time_key") {
		return storage.ErrAlreadyBlocked
	}
	return err
}

func (r *Repository) DeleteBlock(ctx context.Context, slot time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM blocked_slots WHERE start_time = $1
	`, slot)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repository) BlocksInRange(ctx context.Context, from, to time.Time) ([]model.Block, error) {
	return r.queryBlocks(ctx, `
		SELECT id::text, start_time, COALESCE(reason, ''), created_at
		FROM blocked_slots
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC
	`, from, to)
}

func (r *Repository) BlocksFrom(ctx context.Context, from time.Time) ([]model.Block, error) {
	return r.queryBlocks(ctx, `
		SELECT id::text, start_time, COALESCE(reason, ''), created_at
		FROM blocked_slots
		WHERE start_time >= $1
		ORDER BY start_time ASC
	`, from)
}

func (r *Repository) queryBlocks(ctx context.Context, sql string, args ...any) ([]model.Block, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []model.Block
	for rows.Next() {
		var block model.Block
		if err := rows.Scan(&block.ID, &block.StartTime, &block.Reason, &block.CreatedAt); err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return blocks, nil
}
