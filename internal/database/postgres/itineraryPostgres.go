package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type itineraryRow struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	TravelerName  string         `db:"traveler_name"`
	Title         string         `db:"title"`
	StartDate     sql.NullTime   `db:"start_date"`
	EndDate       sql.NullTime   `db:"end_date"`
	Items         []byte         `db:"items"`
	AttractionIDs pq.StringArray `db:"attraction_ids"`
	Notes         string         `db:"notes"`
	Source        string         `db:"source"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *itineraryRow) toEntity() (*entity.Itinerary, error) {
	it := &entity.Itinerary{
		ID:            r.ID,
		UserID:        r.UserID,
		TravelerName:  r.TravelerName,
		Title:         r.Title,
		AttractionIDs: []string(r.AttractionIDs),
		Notes:         r.Notes,
		Source:        entity.ItinerarySource(r.Source),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.StartDate.Valid {
		d := entity.DateOf(r.StartDate.Time)
		it.StartDate = &d
	}
	if r.EndDate.Valid {
		d := entity.DateOf(r.EndDate.Time)
		it.EndDate = &d
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &it.Items); err != nil {
			return nil, entity.StoreError("decode itinerary items", err)
		}
	}
	return it, nil
}

func nullDate(d *entity.Date) interface{} {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

const itineraryColumns = `id, user_id, traveler_name, title, start_date, end_date, items,
	attraction_ids, notes, source, created_at, updated_at`

type itineraryRepository struct {
	db *sqlx.DB
}

func NewItineraryRepository(db *sqlx.DB) database.ItineraryRepository {
	return &itineraryRepository{db: db}
}

func (r *itineraryRepository) GetByID(ctx context.Context, id string) (*entity.Itinerary, error) {
	query := `SELECT ` + itineraryColumns + ` FROM itineraries WHERE id = $1`

	var row itineraryRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrItineraryNotFound
	}
	if err != nil {
		return nil, entity.StoreError("get itinerary", err)
	}
	return row.toEntity()
}

func (r *itineraryRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Itinerary, error) {
	return listItineraries(ctx, r.db, userID)
}

func listItineraries(ctx context.Context, q sqlx.QueryerContext, userID string) ([]*entity.Itinerary, error) {
	query := `SELECT ` + itineraryColumns + ` FROM itineraries
		WHERE user_id = $1
		ORDER BY created_at DESC`

	var rows []itineraryRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, userID); err != nil {
		return nil, entity.StoreError("list itineraries", err)
	}

	out := make([]*entity.Itinerary, 0, len(rows))
	for i := range rows {
		it, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *itineraryRepository) CreateGuarded(ctx context.Context, it *entity.Itinerary) error {
	return r.guarded(ctx, it, func(tx *sqlx.Tx, items []byte) error {
		query := `INSERT INTO itineraries (` + itineraryColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		_, err := tx.ExecContext(ctx, query,
			it.ID, it.UserID, it.TravelerName, it.Title,
			nullDate(it.StartDate), nullDate(it.EndDate), items,
			pq.StringArray(it.AttractionIDs), it.Notes, string(it.Source),
			it.CreatedAt, it.UpdatedAt,
		)
		if err != nil {
			return entity.StoreError("insert itinerary", err)
		}
		return nil
	})
}

func (r *itineraryRepository) UpdateGuarded(ctx context.Context, it *entity.Itinerary) error {
	return r.guarded(ctx, it, func(tx *sqlx.Tx, items []byte) error {
		query := `
			UPDATE itineraries
			SET traveler_name = $2, title = $3, start_date = $4, end_date = $5, items = $6,
				attraction_ids = $7, notes = $8, source = $9, updated_at = $10
			WHERE id = $1
		`
		res, err := tx.ExecContext(ctx, query,
			it.ID, it.TravelerName, it.Title,
			nullDate(it.StartDate), nullDate(it.EndDate), items,
			pq.StringArray(it.AttractionIDs), it.Notes, string(it.Source), it.UpdatedAt,
		)
		if err != nil {
			return entity.StoreError("update itinerary", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return entity.StoreError("update itinerary", err)
		}
		if n == 0 {
			return entity.ErrItineraryNotFound
		}
		return nil
	})
}

// guarded serializes writers per user with a transaction-scoped advisory
// lock, then re-checks overlap against the committed itineraries.
func (r *itineraryRepository) guarded(ctx context.Context, it *entity.Itinerary, write func(*sqlx.Tx, []byte) error) error {
	items, err := json.Marshal(it.Items)
	if err != nil {
		return entity.InvalidRequest("itinerary items: %v", err)
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return entity.StoreError("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "itinerary:"+it.UserID); err != nil {
		return entity.StoreError("lock itineraries", err)
	}

	if rng, ok := it.DateRange(); ok {
		existing, err := listItineraries(ctx, tx, it.UserID)
		if err != nil {
			return err
		}
		if entity.FindOverlap(rng, existing, it.ID) != nil {
			return entity.ErrDateRangeConflict
		}
	}

	if err := write(tx, items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return entity.StoreError("commit itinerary", err)
	}
	return nil
}

func (r *itineraryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM itineraries WHERE id = $1`, id)
	if err != nil {
		return entity.StoreError("delete itinerary", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return entity.StoreError("delete itinerary", err)
	}
	if n == 0 {
		return entity.ErrItineraryNotFound
	}
	return nil
}
