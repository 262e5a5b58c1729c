package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/metrics"
	"github.com/inpaintx/dataset-ingestion-service/internal/media"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PairProcessor turns one validated (image, mask) pair into items.
type PairProcessor interface {
	ProcessPair(ctx context.Context, pair media.Pair, subfolder string, uploadIndex int) ([]entity.Item, error)
}

// ArchiveHandler extracts items from a zip of pair subdirectories.
type ArchiveHandler interface {
	Process(ctx context.Context, archiveData []byte, subfolder string, startUploadIndex int) (*media.ArchiveResult, error)
}

// IngestUploadInput is one ingestion call. TempPaths names caller-staged
// files the pipeline must remove on every exit path.
type IngestUploadInput struct {
	UserID      string
	DatasetName string
	ImageName   string
	ImageData   []byte
	MaskName    string
	MaskData    []byte
	TempPaths   []string
}

// IngestUploadUseCase drives one upload through estimate, reserve, resolve,
// extract, persist and confirm. Any failure after the reserve triggers a
// refund attempt before the error propagates; cleanup of staged files runs
// on every path.
type IngestUploadUseCase struct {
	estimator *CostEstimator
	ledger    port.TokenLedger
	repo      port.DatasetRepository
	storage   port.FileStorage
	pairs     PairProcessor
	archives  ArchiveHandler
	mutator   *DatasetMutator
	publisher port.StatusPublisher
	alerts    port.RefundAlertNotifier
	logger    *zap.Logger
}

func NewIngestUploadUseCase(
	estimator *CostEstimator,
	ledger port.TokenLedger,
	repo port.DatasetRepository,
	storage port.FileStorage,
	pairs PairProcessor,
	archives ArchiveHandler,
	mutator *DatasetMutator,
	publisher port.StatusPublisher,
	alerts port.RefundAlertNotifier,
	logger *zap.Logger,
) *IngestUploadUseCase {
	return &IngestUploadUseCase{
		estimator: estimator,
		ledger:    ledger,
		repo:      repo,
		storage:   storage,
		pairs:     pairs,
		archives:  archives,
		mutator:   mutator,
		publisher: publisher,
		alerts:    alerts,
		logger:    logger,
	}
}

func (uc *IngestUploadUseCase) Execute(ctx context.Context, input IngestUploadInput) (*entity.IngestionResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "IngestUploadUseCase.Execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("ingest.user_id", input.UserID),
		attribute.String("ingest.dataset", input.DatasetName),
	)

	log := uc.logger.With(
		zap.String("user_id", input.UserID),
		zap.String("dataset", input.DatasetName),
	)

	metrics.ActiveIngestions.Inc()
	defer metrics.ActiveIngestions.Dec()
	totalTimer := time.Now()

	if len(input.TempPaths) > 0 {
		cleanupCtx := context.WithoutCancel(ctx)
		defer uc.storage.CleanupTempFiles(cleanupCtx, input.TempPaths)
	}

	// Estimating: rejection here happens before any reservation exists.
	estStart := time.Now()
	ctxEst, spanEst := tracer.Start(ctx, "estimate_cost")
	est, err := uc.estimator.Estimate(ctxEst, input.ImageName, input.ImageData, input.MaskName, input.MaskData)
	spanEst.End()
	if err != nil {
		log.Warn("cost estimation rejected upload", zap.Error(err))
		uc.failWithoutReservation(ctx, input, err)
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("estimate").Observe(time.Since(estStart).Seconds())

	// Reserving: a failed reserve holds nothing, so no refund either.
	res, err := uc.ledger.Reserve(ctx, input.UserID, est.TokenCost,
		entity.OperationDatasetUpload, uuid.NewString())
	if err != nil {
		log.Warn("token reservation failed", zap.Float64("cost", est.TokenCost), zap.Error(err))
		uc.failWithoutReservation(ctx, input, err)
		return nil, fmt.Errorf("reserve %.2f tokens: %w", est.TokenCost, err)
	}
	metrics.TokensReservedTotal.Add(est.TokenCost)
	log = log.With(zap.String("reservation_id", res.ID))

	// Resolving
	ds, err := uc.repo.GetByUserAndName(ctx, input.UserID, input.DatasetName)
	if err != nil {
		return nil, uc.refundAndFail(ctx, input, res, fmt.Errorf("resolve dataset: %w", err), log)
	}
	if ds == nil {
		return nil, uc.refundAndFail(ctx, input, res,
			apperr.New(apperr.NotFound, "dataset %q not found", input.DatasetName), log)
	}

	// Extracting
	exStart := time.Now()
	ctxEx, spanEx := tracer.Start(ctx, "extract")
	items, nextIndex, err := uc.extract(ctxEx, input, est, ds, log)
	spanEx.End()
	if err != nil {
		return nil, uc.refundAndFail(ctx, input, res, err, log)
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	// Persisting
	perStart := time.Now()
	ctxPer, spanPer := tracer.Start(ctx, "persist")
	added, err := uc.mutator.AppendItems(ctxPer, input.UserID, input.DatasetName, items, nextIndex)
	spanPer.End()
	if err != nil {
		return nil, uc.refundAndFail(ctx, input, res, err, log)
	}
	metrics.StageDuration.WithLabelValues("persist").Observe(time.Since(perStart).Seconds())
	metrics.ItemsPersistedTotal.Add(float64(added))

	// Confirming. A failed confirm is still an attempted settlement;
	// stacking a refund on top could settle the reservation twice, so the
	// error propagates without one.
	outcome, err := uc.ledger.Confirm(ctx, res.ID)
	if err != nil {
		log.Error("confirm failed after persist", zap.Error(err))
		confirmErr := apperr.Wrap(apperr.Internal, err, "confirm reservation %s", res.ID)
		uc.publishStatus(ctx, input, failureStatus(input, confirmErr), log)
		metrics.IngestionsTotal.WithLabelValues("failed").Inc()
		return nil, confirmErr
	}
	metrics.TokensChargedTotal.Add(outcome.TokensSpent)

	result := &entity.IngestionResult{
		ProcessedItems: added,
		ReservationID:  res.ID,
		TokenCost:      est.TokenCost,
	}

	uc.publishStatus(ctx, input, successStatus(input, result), log)
	metrics.IngestionsTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	log.Info("ingestion completed",
		zap.Int("processed_items", added),
		zap.Float64("token_cost", est.TokenCost),
		zap.Float64("remaining_balance", outcome.RemainingBalance),
	)
	return result, nil
}

func (uc *IngestUploadUseCase) extract(ctx context.Context, input IngestUploadInput, est *entity.CostEstimate, ds *entity.Dataset, log *zap.Logger) ([]entity.Item, int, error) {
	subfolder := input.UserID + "/" + input.DatasetName

	var (
		items     []entity.Item
		nextIndex int
	)
	if media.ClassifyName(input.ImageName) == media.KindArchive {
		archResult, err := uc.archives.Process(ctx, input.ImageData, subfolder, ds.NextUploadIndex)
		if err != nil {
			return nil, 0, err
		}
		items = archResult.Items
		nextIndex = ds.NextUploadIndex + archResult.PairsProcessed
	} else {
		pair := media.Pair{
			ImageName: input.ImageName,
			ImageData: input.ImageData,
			MaskName:  input.MaskName,
			MaskData:  input.MaskData,
		}
		var err error
		items, err = uc.pairs.ProcessPair(ctx, pair, subfolder, ds.NextUploadIndex)
		if err != nil {
			return nil, 0, err
		}
		nextIndex = ds.NextUploadIndex + 1
	}

	// The charge was fixed at estimation time; a diverging frame count is
	// recorded, not corrected.
	if est.FrameCount != nil && *est.FrameCount != len(items) {
		log.Warn("extracted frame count diverged from estimate",
			zap.Int("estimated", *est.FrameCount),
			zap.Int("extracted", len(items)),
		)
	}

	if len(items) == 0 {
		return nil, 0, apperr.New(apperr.Internal, "extraction produced no items")
	}
	metrics.FramesExtractedTotal.Add(float64(countFrames(items)))

	return items, nextIndex, nil
}

// refundAndFail releases the reservation before propagating cause. A refund
// failure is logged and alerted but never replaces the original error.
func (uc *IngestUploadUseCase) refundAndFail(ctx context.Context, input IngestUploadInput, res *entity.TokenReservation, cause error, log *zap.Logger) error {
	if err := uc.ledger.Refund(ctx, res.ID); err != nil {
		log.Error("refund failed, tokens remain held",
			zap.Float64("amount", res.Amount),
			zap.Error(err),
		)
		metrics.RefundFailuresTotal.Inc()
		if uc.alerts != nil {
			_ = uc.alerts.NotifyRefundFailure(ctx, res.UserID, res.ID, res.Amount, err.Error())
		}
	} else {
		metrics.TokensRefundedTotal.Add(res.Amount)
	}

	uc.publishStatus(ctx, input, failureStatus(input, cause), log)
	metrics.IngestionsTotal.WithLabelValues("failed").Inc()
	return cause
}

func (uc *IngestUploadUseCase) failWithoutReservation(ctx context.Context, input IngestUploadInput, cause error) {
	uc.publishStatus(ctx, input, failureStatus(input, cause), uc.logger)
	metrics.IngestionsTotal.WithLabelValues("rejected").Inc()
}

func (uc *IngestUploadUseCase) publishStatus(ctx context.Context, input IngestUploadInput, msg entity.IngestStatusMessage, log *zap.Logger) {
	if uc.publisher == nil {
		return
	}
	data, _ := json.Marshal(msg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish ingestion status", zap.Error(err))
	}
}

func successStatus(input IngestUploadInput, result *entity.IngestionResult) entity.IngestStatusMessage {
	return entity.IngestStatusMessage{
		UserID:         input.UserID,
		DatasetName:    input.DatasetName,
		Status:         entity.IngestStatusCompleted,
		ProcessedItems: result.ProcessedItems,
		ReservationID:  result.ReservationID,
		TokenCost:      result.TokenCost,
	}
}

func failureStatus(input IngestUploadInput, cause error) entity.IngestStatusMessage {
	return entity.IngestStatusMessage{
		UserID:       input.UserID,
		DatasetName:  input.DatasetName,
		Status:       entity.IngestStatusFailed,
		ErrorKind:    string(apperr.KindOf(cause)),
		ErrorMessage: cause.Error(),
	}
}

func countFrames(items []entity.Item) int {
	n := 0
	for i := range items {
		if items[i].FrameIndex != nil {
			n++
		}
	}
	return n
}
