package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/jmoiron/sqlx"
)

const bookingColumns = `
	id, attraction_id, guide_id, customer_id, customer_name, email,
	date, party_size, status, created_at, updated_at`

type bookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) database.BookingRepository {
	return &bookingRepository{db: db}
}

// CreateWithinCapacity locks the (guide_id, date) capacity row for the rest of
// the transaction, so concurrent admissions for the same slot run one after another
// and each one sees the bookings committed before it.
func (r *bookingRepository) CreateWithinCapacity(ctx context.Context, booking *entity.Booking) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return entity.StoreError("begin transaction", err)
	}
	defer tx.Rollback()

	totalSlots, err := lockSlot(ctx, tx, booking.SlotKey())
	if err != nil {
		return err
	}

	held, err := heldBookings(ctx, tx, booking.SlotKey())
	if err != nil {
		return err
	}

	remaining := entity.RemainingCapacity(totalSlots, held)
	if remaining < booking.PartySize {
		return &entity.CapacityError{Remaining: remaining, Requested: booking.PartySize}
	}

	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (:id, :attraction_id, :guide_id, :customer_id, :customer_name, :email,
			:date, :party_size, :status, :created_at, :updated_at)
	`
	if _, err := tx.NamedExecContext(ctx, query, booking); err != nil {
		return entity.StoreError("insert booking", err)
	}

	if err := tx.Commit(); err != nil {
		return entity.StoreError("commit booking", err)
	}
	return nil
}

// lockSlot returns the published total for key and holds a row lock on it.
// No row means nothing was published: zero capacity, nothing to lock.
func lockSlot(ctx context.Context, tx *sqlx.Tx, key entity.SlotKey) (int, error) {
	var totalSlots int
	query := `SELECT total_slots FROM guide_availability WHERE guide_id = $1 AND date = $2 FOR UPDATE`
	err := tx.QueryRowxContext(ctx, query, key.GuideID, key.Date).Scan(&totalSlots)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, entity.StoreError("lock availability slot", err)
	}
	return totalSlots, nil
}

func heldBookings(ctx context.Context, q sqlx.QueryerContext, key entity.SlotKey) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE guide_id = $1 AND date = $2 AND status = ANY($3)`

	var held []*entity.Booking
	if err := sqlx.SelectContext(ctx, q, &held, query, key.GuideID, key.Date, capacityStatuses()); err != nil {
		return nil, entity.StoreError("select held bookings", err)
	}
	return held, nil
}

// GetByID retrieves a booking by its ID
func (r *bookingRepository) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var booking entity.Booking
	err := r.db.GetContext(ctx, &booking, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, entity.StoreError("get booking", err)
	}
	return &booking, nil
}

// List returns bookings matching filter, newest first
func (r *bookingRepository) List(ctx context.Context, filter entity.BookingFilter) ([]*entity.Booking, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.Date.IsZero() {
		add("date = $%d", filter.Date)
	}
	if filter.GuideID != "" {
		add("guide_id = $%d", filter.GuideID)
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	var bookings []*entity.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, entity.StoreError("list bookings", err)
	}
	return bookings, nil
}

// ListBySlot returns every booking for a guide and date regardless of status
func (r *bookingRepository) ListBySlot(ctx context.Context, key entity.SlotKey) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE guide_id = $1 AND date = $2
		ORDER BY created_at ASC`

	var bookings []*entity.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, key.GuideID, key.Date); err != nil {
		return nil, entity.StoreError("list bookings by slot", err)
	}
	return bookings, nil
}

// UpdateStatus is a compare-and-set on the status column
func (r *bookingRepository) UpdateStatus(ctx context.Context, id string, from, to entity.BookingStatus) (*entity.Booking, error) {
	query := `
		UPDATE bookings SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + bookingColumns

	var booking entity.Booking
	err := r.db.GetContext(ctx, &booking, query, to, time.Now().UTC(), id, from)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, entity.ErrConcurrentUpdate
	}
	if err != nil {
		return nil, entity.StoreError("update booking status", err)
	}
	return &booking, nil
}

// ListUnsettled returns pending/confirmed bookings dated before the given day
func (r *bookingRepository) ListUnsettled(ctx context.Context, before entity.Date, limit int) ([]*entity.Booking, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE date < $1 AND status = ANY($2)
		ORDER BY date ASC
		LIMIT $3`

	var bookings []*entity.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, before, capacityStatuses(), limit); err != nil {
		return nil, entity.StoreError("list unsettled bookings", err)
	}
	return bookings, nil
}
