package port

import (
	"context"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
)

// DatasetUpdate carries the fields an update applies. Items and
// NextUploadIndex are always written together in one atomic statement.
type DatasetUpdate struct {
	Items           []entity.Item
	NextUploadIndex int
	Tags            []string
}

// DatasetRepository is the persistence engine for datasets, keyed by
// (userID, name).
type DatasetRepository interface {
	Exists(ctx context.Context, userID, name string) (bool, error)
	GetByUserAndName(ctx context.Context, userID, name string) (*entity.Dataset, error)
	Create(ctx context.Context, dataset *entity.Dataset) error
	Update(ctx context.Context, userID, name string, update DatasetUpdate) (*entity.Dataset, error)
	Delete(ctx context.Context, userID, name string) error
}
