package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// RoomRepo reads rooms and manages their blackout calendar.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to the provided database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// GetByID returns the room or ErrRoomNotFound.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (model.Room, error) {
	var rm model.Room
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, base_price_cents, is_active FROM rooms WHERE id = ?`, id,
	).Scan(&rm.ID, &rm.TenantID, &rm.Name, &rm.BasePriceCents, &rm.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Room{}, ErrRoomNotFound
	}
	return rm, err
}

// BlockedDates returns blackout nights of the room inside rng, ascending.
func (r *RoomRepo) BlockedDates(ctx context.Context, roomID uint64, rng model.DateRange) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT blocked_date FROM room_blocked_dates
		 WHERE room_id = ? AND blocked_date >= ? AND blocked_date < ?
		 ORDER BY blocked_date`,
		roomID, rng.CheckIn, rng.CheckOut)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, model.Day(d))
	}
	return out, rows.Err()
}

// Block adds blackout nights; already-blocked nights are kept as they are.
func (r *RoomRepo) Block(ctx context.Context, roomID uint64, dates []time.Time, reason string) error {
	if len(dates) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT IGNORE INTO room_blocked_dates (room_id, blocked_date, reason) VALUES `)
	args := make([]any, 0, len(dates)*3)
	for i, d := range dates {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, roomID, d.Format(model.DateLayout), reason)
	}
	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

// Unblock removes blackout nights inside rng and returns how many were removed.
func (r *RoomRepo) Unblock(ctx context.Context, roomID uint64, rng model.DateRange) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM room_blocked_dates WHERE room_id = ? AND blocked_date >= ? AND blocked_date < ?`,
		roomID, rng.CheckIn, rng.CheckOut)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
