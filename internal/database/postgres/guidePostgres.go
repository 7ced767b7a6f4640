package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type guideRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Name      string         `db:"name"`
	Languages pq.StringArray `db:"languages"`
	Rating    float64        `db:"rating"`
	Bio       string         `db:"bio"`
	Expertise pq.StringArray `db:"expertise"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r *guideRow) toEntity() *entity.Guide {
	return &entity.Guide{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Languages: []string(r.Languages),
		Rating:    r.Rating,
		Bio:       r.Bio,
		Expertise: []string(r.Expertise),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const guideColumns = `id, user_id, name, languages, rating, bio, expertise, created_at, updated_at`

type guideRepository struct {
	db *sqlx.DB
}

func NewGuideRepository(db *sqlx.DB) database.GuideRepository {
	return &guideRepository{db: db}
}

func (r *guideRepository) Create(ctx context.Context, guide *entity.Guide) error {
	now := time.Now().UTC()
	guide.CreatedAt = now
	guide.UpdatedAt = now

	query := `INSERT INTO guides (` + guideColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		guide.ID,
		guide.UserID,
		guide.Name,
		pq.StringArray(guide.Languages),
		guide.Rating,
		guide.Bio,
		pq.StringArray(guide.Expertise),
		guide.CreatedAt,
		guide.UpdatedAt,
	)
	if err != nil {
		return entity.StoreError("insert guide", err)
	}
	return nil
}

func (r *guideRepository) GetByID(ctx context.Context, id string) (*entity.Guide, error) {
	return r.getBy(ctx, "id", id)
}

func (r *guideRepository) GetByUserID(ctx context.Context, userID string) (*entity.Guide, error) {
	return r.getBy(ctx, "user_id", userID)
}

func (r *guideRepository) getBy(ctx context.Context, column, value string) (*entity.Guide, error) {
	query := `SELECT ` + guideColumns + ` FROM guides WHERE ` + column + ` = $1`

	var row guideRow
	err := r.db.GetContext(ctx, &row, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrGuideNotFound
	}
	if err != nil {
		return nil, entity.StoreError("get guide", err)
	}
	return row.toEntity(), nil
}

type availabilityRepository struct {
	db *sqlx.DB
}

func NewAvailabilityRepository(db *sqlx.DB) database.AvailabilityRepository {
	return &availabilityRepository{db: db}
}

func (r *availabilityRepository) GetSlot(ctx context.Context, key entity.SlotKey) (*entity.AvailabilitySlot, error) {
	query := `SELECT guide_id, date, total_slots, updated_at FROM guide_availability
		WHERE guide_id = $1 AND date = $2`

	var slot entity.AvailabilitySlot
	err := r.db.GetContext(ctx, &slot, query, key.GuideID, key.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, entity.StoreError("get availability slot", err)
	}
	return &slot, nil
}

func (r *availabilityRepository) ListSlots(ctx context.Context, guideID string) ([]*entity.AvailabilitySlot, error) {
	query := `SELECT guide_id, date, total_slots, updated_at FROM guide_availability
		WHERE guide_id = $1
		ORDER BY date ASC`

	var slots []*entity.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, guideID); err != nil {
		return nil, entity.StoreError("list availability slots", err)
	}
	return slots, nil
}

// UpsertSlot takes the same row lock as admission, so a slot edit never
// interleaves with a booking insert for the same guide and date.
func (r *availabilityRepository) UpsertSlot(ctx context.Context, slot *entity.AvailabilitySlot) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return entity.StoreError("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := lockSlot(ctx, tx, slot.Key()); err != nil {
		return err
	}

	held, err := heldBookings(ctx, tx, slot.Key())
	if err != nil {
		return err
	}
	if slot.TotalSlots < entity.HeldCapacity(held) {
		return entity.ErrCapacityBelowBooked
	}

	slot.UpdatedAt = time.Now().UTC()
	query := `
		INSERT INTO guide_availability (guide_id, date, total_slots, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guide_id, date)
		DO UPDATE SET total_slots = EXCLUDED.total_slots, updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, slot.GuideID, slot.Date, slot.TotalSlots, slot.UpdatedAt); err != nil {
		return entity.StoreError("upsert availability slot", err)
	}

	if err := tx.Commit(); err != nil {
		return entity.StoreError("commit availability slot", err)
	}
	return nil
}
