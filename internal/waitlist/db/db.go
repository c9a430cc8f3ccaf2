package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-adbooking/internal/database"
	"ms-adbooking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateEntry inserts a waitlist entry. The partial unique index on dedup_key
// collapses duplicate joins: on a violation the caller gets the existing
// active entry back with created=false.
func (d *DB) CreateEntry(ctx context.Context, entry models.WaitlistEntry) (*models.WaitlistEntry, bool, error) {
	_, err := d.Bun.NewInsert().Model(&entry).Exec(ctx)
	if err == nil {
		return &entry, true, nil
	}
	if !database.IsUniqueViolation(err) {
		return nil, false, err
	}

	existing, ferr := d.ActiveByDedupKey(ctx, entry.DedupKey)
	if ferr != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (d *DB) ActiveByDedupKey(ctx context.Context, dedupKey string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("dedup_key = ?", dedupKey).
		Where("status = ?", models.WaitlistActive).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ActiveBySlotKey returns the queue for a slot in first-come-first-served
// order.
func (d *DB) ActiveBySlotKey(ctx context.Context, slotKey string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("slot_key = ?", slotKey).
		Where("status = ?", models.WaitlistActive).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *DB) GetEntriesByUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *DB) GetEntryByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkNotified flips a single entry from active to notified. Reports false
// when another promotion got there first.
func (d *DB) MarkNotified(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.WaitlistEntry)(nil)).
		Set("status = ?", models.WaitlistNotified).
		Set("notified_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.WaitlistActive).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ExpireBySlotKey retires a slot's whole queue. Used when the campaign is no
// longer open for booking.
func (d *DB) ExpireBySlotKey(ctx context.Context, slotKey string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.WaitlistEntry)(nil)).
		Set("status = ?", models.WaitlistExpired).
		Where("slot_key = ?", slotKey).
		Where("status = ?", models.WaitlistActive).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Deactivate removes a user's own entry from the queue.
func (d *DB) Deactivate(ctx context.Context, id, userID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.WaitlistEntry)(nil)).
		Set("status = ?", models.WaitlistExpired).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Where("status IN (?)", bun.In([]models.WaitlistStatus{models.WaitlistActive, models.WaitlistNotified})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}
