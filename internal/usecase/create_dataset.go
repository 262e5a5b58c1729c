package usecase

import (
	"context"
	"fmt"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"go.uber.org/zap"
)

type CreateDatasetUseCase struct {
	repo   port.DatasetRepository
	logger *zap.Logger
}

func NewCreateDatasetUseCase(repo port.DatasetRepository, logger *zap.Logger) *CreateDatasetUseCase {
	return &CreateDatasetUseCase{repo: repo, logger: logger}
}

func (uc *CreateDatasetUseCase) Execute(ctx context.Context, userID, name string, tags []string) (*entity.Dataset, error) {
	exists, err := uc.repo.Exists(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("check dataset existence: %w", err)
	}
	if exists {
		return nil, apperr.New(apperr.ResourceConflict,
			"dataset %q already exists for user %s", name, userID)
	}

	ds := entity.NewDataset(userID, name, tags)
	if err := uc.repo.Create(ctx, ds); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	uc.logger.Info("dataset created",
		zap.String("user_id", userID),
		zap.String("dataset", name),
	)
	return ds, nil
}
