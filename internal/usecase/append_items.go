package usecase

import (
	"context"
	"fmt"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"go.uber.org/zap"
)

// DatasetMutator is the sole writer of a dataset's items and upload index.
// Items and index advance in one repository write; a re-read afterwards
// verifies the persistence layer actually applied it.
type DatasetMutator struct {
	repo   port.DatasetRepository
	logger *zap.Logger
}

func NewDatasetMutator(repo port.DatasetRepository, logger *zap.Logger) *DatasetMutator {
	return &DatasetMutator{repo: repo, logger: logger}
}

// AppendItems merges newItems after the dataset's existing items and
// persists nextUploadIndex with them. Returns the number of items added.
func (m *DatasetMutator) AppendItems(ctx context.Context, userID, name string, newItems []entity.Item, nextUploadIndex int) (int, error) {
	ds, err := m.repo.GetByUserAndName(ctx, userID, name)
	if err != nil {
		return 0, fmt.Errorf("load dataset: %w", err)
	}
	if ds == nil {
		return 0, apperr.New(apperr.NotFound, "dataset %q not found for user %s", name, userID)
	}

	merged := make([]entity.Item, 0, len(ds.Items)+len(newItems))
	merged = append(merged, ds.Items...)
	merged = append(merged, newItems...)

	if _, err := m.repo.Update(ctx, userID, name, port.DatasetUpdate{
		Items:           merged,
		NextUploadIndex: nextUploadIndex,
	}); err != nil {
		return 0, fmt.Errorf("persist items: %w", err)
	}

	verified, err := m.repo.GetByUserAndName(ctx, userID, name)
	if err != nil {
		return 0, fmt.Errorf("verify write: %w", err)
	}
	want := len(ds.Items) + len(newItems)
	if verified == nil || len(verified.Items) != want {
		got := 0
		if verified != nil {
			got = len(verified.Items)
		}
		return 0, apperr.New(apperr.PersistenceInconsistency,
			"dataset %q holds %d items after write, want %d", name, got, want)
	}

	m.logger.Debug("items appended",
		zap.String("dataset", name),
		zap.Int("added", len(newItems)),
		zap.Int("next_upload_index", nextUploadIndex),
	)
	return len(newItems), nil
}
