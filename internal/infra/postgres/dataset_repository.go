package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type DatasetRepository struct {
	pool *pgxpool.Pool
}

func NewDatasetRepository(pool *pgxpool.Pool) *DatasetRepository {
	return &DatasetRepository{pool: pool}
}

func (r *DatasetRepository) Exists(ctx context.Context, userID, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM datasets WHERE user_id=$1 AND name=$2)`,
		userID, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dataset exists: %w", err)
	}
	return exists, nil
}

func (r *DatasetRepository) GetByUserAndName(ctx context.Context, userID, name string) (*entity.Dataset, error) {
	query := `
		SELECT user_id, name, tags, items, next_upload_index, created_at, updated_at
		FROM datasets WHERE user_id=$1 AND name=$2`

	ds := &entity.Dataset{}
	var itemsJSON []byte
	err := r.pool.QueryRow(ctx, query, userID, name).Scan(
		&ds.UserID, &ds.Name, &ds.Tags, &itemsJSON,
		&ds.NextUploadIndex, &ds.CreatedAt, &ds.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &ds.Items); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}
	return ds, nil
}

func (r *DatasetRepository) Create(ctx context.Context, dataset *entity.Dataset) error {
	itemsJSON, err := json.Marshal(itemsOrEmpty(dataset.Items))
	if err != nil {
		return fmt.Errorf("encode dataset items: %w", err)
	}

	query := `
		INSERT INTO datasets (user_id, name, tags, items, next_upload_index, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = r.pool.Exec(ctx, query,
		dataset.UserID, dataset.Name, dataset.Tags, itemsJSON,
		dataset.NextUploadIndex, dataset.CreatedAt, dataset.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Wrap(apperr.ResourceConflict, err,
				"dataset %q already exists for user %s", dataset.Name, dataset.UserID)
		}
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

// Update writes items and next_upload_index together in one statement; the
// row update is the atomicity boundary concurrent ingestions rely on.
func (r *DatasetRepository) Update(ctx context.Context, userID, name string, update port.DatasetUpdate) (*entity.Dataset, error) {
	itemsJSON, err := json.Marshal(itemsOrEmpty(update.Items))
	if err != nil {
		return nil, fmt.Errorf("encode dataset items: %w", err)
	}

	query := `
		UPDATE datasets
		SET items=$3, next_upload_index=$4, tags=COALESCE($5, tags), updated_at=$6
		WHERE user_id=$1 AND name=$2
		RETURNING user_id, name, tags, items, next_upload_index, created_at, updated_at`

	ds := &entity.Dataset{}
	var returnedItems []byte
	err = r.pool.QueryRow(ctx, query,
		userID, name, itemsJSON, update.NextUploadIndex, update.Tags, time.Now().UTC(),
	).Scan(
		&ds.UserID, &ds.Name, &ds.Tags, &returnedItems,
		&ds.NextUploadIndex, &ds.CreatedAt, &ds.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "dataset %q not found for user %s", name, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("update dataset: %w", err)
	}

	if err := json.Unmarshal(returnedItems, &ds.Items); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}
	return ds, nil
}

func (r *DatasetRepository) Delete(ctx context.Context, userID, name string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM datasets WHERE user_id=$1 AND name=$2`, userID, name)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "dataset %q not found for user %s", name, userID)
	}
	return nil
}

// itemsOrEmpty keeps the stored JSON an array, never null.
func itemsOrEmpty(items []entity.Item) []entity.Item {
	if items == nil {
		return []entity.Item{}
	}
	return items
}
