package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"go.uber.org/zap"
)

// IngestWorker handles queued ingestion requests whose payloads were staged
// to object storage beforehand. Permanent rejections go to the DLQ and ack;
// transient failures return an error so the consumer redelivers.
type IngestWorker struct {
	ingest  *IngestUploadUseCase
	storage port.FileStorage
	dlq     port.DLQPublisher
	logger  *zap.Logger
}

func NewIngestWorker(ingest *IngestUploadUseCase, storage port.FileStorage, dlq port.DLQPublisher, logger *zap.Logger) *IngestWorker {
	return &IngestWorker{ingest: ingest, storage: storage, dlq: dlq, logger: logger}
}

func (w *IngestWorker) Handle(ctx context.Context, body []byte) error {
	var msg entity.IngestRequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("failed to unmarshal ingest message", zap.Error(err), zap.ByteString("body", body))
		_ = w.dlq.PublishToDLQ(ctx, body, "unmarshal_error: "+err.Error())
		return nil
	}

	log := w.logger.With(
		zap.String("user_id", msg.UserID),
		zap.String("dataset", msg.DatasetName),
	)

	imageData, err := w.storage.ReadFile(ctx, msg.ImageKey)
	if err != nil {
		return fmt.Errorf("read staged image %s: %w", msg.ImageKey, err)
	}
	maskData, err := w.storage.ReadFile(ctx, msg.MaskKey)
	if err != nil {
		return fmt.Errorf("read staged mask %s: %w", msg.MaskKey, err)
	}

	staged := []string{msg.ImageKey, msg.MaskKey}

	_, err = w.ingest.Execute(ctx, IngestUploadInput{
		UserID:      msg.UserID,
		DatasetName: msg.DatasetName,
		ImageName:   msg.ImageName,
		ImageData:   imageData,
		MaskName:    msg.MaskName,
		MaskData:    maskData,
	})
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.InvalidFormat, apperr.ValidationFailed, apperr.NotFound, apperr.ResourceConflict:
			// Redelivery cannot fix the content; park it.
			log.Warn("queued ingestion rejected permanently", zap.Error(err))
			_ = w.dlq.PublishToDLQ(ctx, body, err.Error())
			w.storage.CleanupTempFiles(ctx, staged)
			return nil
		default:
			log.Warn("queued ingestion failed, will be redelivered", zap.Error(err))
			return err
		}
	}

	w.storage.CleanupTempFiles(ctx, staged)
	return nil
}
