package usecase

import (
	"archive/zip"
	"bytes"
	"context"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/media"
	"go.uber.org/zap"
)

// FrameCounter decodes a video buffer into frames. The estimator only needs
// the count, but pricing a video genuinely requires the decode.
type FrameCounter interface {
	DecodeFrames(ctx context.Context, name string, data []byte) ([][]byte, error)
}

// CostEstimator prices an upload before any tokens are held. Archive
// pricing works from entry metadata alone; only the video path decodes.
type CostEstimator struct {
	frames FrameCounter
	logger *zap.Logger
}

func NewCostEstimator(frames FrameCounter, logger *zap.Logger) *CostEstimator {
	return &CostEstimator{frames: frames, logger: logger}
}

func (e *CostEstimator) Estimate(ctx context.Context, imageName string, imageData []byte, maskName string, maskData []byte) (*entity.CostEstimate, error) {
	imageKind := media.ClassifyName(imageName)
	maskKind := media.ClassifyName(maskName)

	switch {
	case imageKind == media.KindArchive:
		count, err := e.countArchiveUnits(imageData)
		if err != nil {
			return nil, err
		}
		return &entity.CostEstimate{TokenCost: float64(count) * entity.PricePerArchivePair}, nil

	case imageKind == media.KindImage && maskKind == media.KindImage:
		return &entity.CostEstimate{TokenCost: entity.PricePerImagePair}, nil

	case imageKind == media.KindVideo:
		frames, err := e.frames.DecodeFrames(ctx, imageName, imageData)
		if err != nil {
			return nil, err
		}
		n := len(frames)
		e.logger.Debug("estimated video upload", zap.Int("frames", n))
		return &entity.CostEstimate{
			TokenCost:  float64(n) * entity.PricePerVideoFrame,
			FrameCount: &n,
		}, nil

	default:
		return nil, apperr.New(apperr.InvalidFormat,
			"cannot price upload combination %s + %s", imageKind, maskKind)
	}
}

// countArchiveUnits counts image and video entries under top-level
// subdirectories, excluding entries named as masks. No entry is decoded;
// pricing is fixed here even if later validation rejects some pairs.
func (e *CostEstimator) countArchiveUnits(archiveData []byte) (int, error) {
	reader, err := zip.NewReader(bytes.NewReader(archiveData), int64(len(archiveData)))
	if err != nil {
		return 0, apperr.Wrap(apperr.InvalidFormat, err, "open archive for estimation")
	}

	count := 0
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if media.TopLevelDir(f.Name) == "" {
			continue
		}
		if media.IsMaskPath(f.Name) {
			continue
		}
		switch media.ClassifyName(f.Name) {
		case media.KindImage, media.KindVideo:
			count++
		}
	}
	return count, nil
}
