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

type attractionRow struct {
	ID           string         `db:"id"`
	GuideID      string         `db:"guide_id"`
	Name         string         `db:"name"`
	Location     string         `db:"location"`
	Description  string         `db:"description"`
	Category     string         `db:"category"`
	Duration     string         `db:"duration"`
	Price        float64        `db:"price"`
	Rating       float64        `db:"rating"`
	Tags         pq.StringArray `db:"tags"`
	Image        string         `db:"image"`
	Availability pq.StringArray `db:"availability"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *attractionRow) toEntity() (*entity.Attraction, error) {
	dates, err := stringsToDates(r.Availability)
	if err != nil {
		return nil, err
	}
	return &entity.Attraction{
		ID:           r.ID,
		GuideID:      r.GuideID,
		Name:         r.Name,
		Location:     r.Location,
		Description:  r.Description,
		Category:     r.Category,
		Duration:     r.Duration,
		Price:        r.Price,
		Rating:       r.Rating,
		Tags:         []string(r.Tags),
		Image:        r.Image,
		Availability: dates,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

const attractionColumns = `id, guide_id, name, location, description, category, duration,
	price, rating, tags, image, availability, created_at, updated_at`

type attractionRepository struct {
	db *sqlx.DB
}

func NewAttractionRepository(db *sqlx.DB) database.AttractionRepository {
	return &attractionRepository{db: db}
}

func (r *attractionRepository) Create(ctx context.Context, a *entity.Attraction) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `INSERT INTO attractions (` + attractionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.GuideID, a.Name, a.Location, a.Description, a.Category, a.Duration,
		a.Price, a.Rating, pq.StringArray(a.Tags), a.Image, datesToStrings(a.Availability),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return entity.StoreError("insert attraction", err)
	}
	return nil
}

func (r *attractionRepository) GetByID(ctx context.Context, id string) (*entity.Attraction, error) {
	query := `SELECT ` + attractionColumns + ` FROM attractions WHERE id = $1`

	var row attractionRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrAttractionNotFound
	}
	if err != nil {
		return nil, entity.StoreError("get attraction", err)
	}
	return row.toEntity()
}

// GetByIDs returns the attractions that exist; missing ids are simply absent
func (r *attractionRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Attraction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + attractionColumns + ` FROM attractions WHERE id = ANY($1)`

	var rows []attractionRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, entity.StoreError("get attractions", err)
	}

	out := make([]*entity.Attraction, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
