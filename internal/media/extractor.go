package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"go.uber.org/zap"
)

// Pair is one (image, mask) association before it becomes items. A video
// pair yields one item per frame.
type Pair struct {
	ImageName string
	ImageData []byte
	MaskName  string
	MaskData  []byte
}

// Extractor turns upload pairs into persisted items. It owns every
// intermediate file it creates: decode work dirs never outlive the call.
type Extractor struct {
	decoder port.FrameDecoder
	storage port.FileStorage
	tempDir string
	logger  *zap.Logger
}

func NewExtractor(decoder port.FrameDecoder, storage port.FileStorage, tempDir string, logger *zap.Logger) *Extractor {
	return &Extractor{decoder: decoder, storage: storage, tempDir: tempDir, logger: logger}
}

// ProcessPair validates and persists one pair, returning the items it
// produced. All items share uploadIndex; video-derived items additionally
// carry their frame position.
func (e *Extractor) ProcessPair(ctx context.Context, pair Pair, subfolder string, uploadIndex int) ([]entity.Item, error) {
	imageKind := ClassifyName(pair.ImageName)
	maskKind := ClassifyName(pair.MaskName)

	switch {
	case imageKind == KindImage && maskKind == KindImage:
		return e.processImagePair(ctx, pair, subfolder, uploadIndex)
	case imageKind == KindVideo && maskKind == KindImage:
		return e.processVideoImagePair(ctx, pair, subfolder, uploadIndex)
	case imageKind == KindVideo && maskKind == KindVideo:
		return e.processVideoPair(ctx, pair, subfolder, uploadIndex)
	default:
		return nil, apperr.New(apperr.InvalidFormat,
			"unsupported file combination: %s + %s", imageKind, maskKind)
	}
}

func (e *Extractor) processImagePair(ctx context.Context, pair Pair, subfolder string, uploadIndex int) ([]entity.Item, error) {
	if !IsBinaryMask(pair.MaskData) {
		return nil, apperr.New(apperr.ValidationFailed,
			"mask %s is not a binary black/white image", pair.MaskName)
	}

	imagePath, err := e.storage.SaveFile(ctx, pair.ImageData, pair.ImageName, subfolder)
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	maskPath, err := e.storage.SaveFile(ctx, pair.MaskData, pair.MaskName, subfolder)
	if err != nil {
		return nil, fmt.Errorf("save mask: %w", err)
	}

	return []entity.Item{{
		ImagePath:   imagePath,
		MaskPath:    maskPath,
		UploadIndex: uploadIndex,
	}}, nil
}

func (e *Extractor) processVideoImagePair(ctx context.Context, pair Pair, subfolder string, uploadIndex int) ([]entity.Item, error) {
	// The single mask is validated once and shared by every frame.
	if !IsBinaryMask(pair.MaskData) {
		return nil, apperr.New(apperr.ValidationFailed,
			"mask %s is not a binary black/white image", pair.MaskName)
	}

	frames, err := e.DecodeFrames(ctx, pair.ImageName, pair.ImageData)
	if err != nil {
		return nil, err
	}

	maskPath, err := e.storage.SaveFile(ctx, pair.MaskData, pair.MaskName, subfolder)
	if err != nil {
		return nil, fmt.Errorf("save mask: %w", err)
	}

	base := baseName(pair.ImageName)
	items := make([]entity.Item, 0, len(frames))
	for i, frame := range frames {
		framePath, err := e.storage.SaveFile(ctx,
			frame, fmt.Sprintf("%s_frame_%03d.png", base, i), subfolder)
		if err != nil {
			return nil, fmt.Errorf("save frame %d: %w", i, err)
		}
		idx := i
		items = append(items, entity.Item{
			ImagePath:   framePath,
			MaskPath:    maskPath,
			FrameIndex:  &idx,
			UploadIndex: uploadIndex,
		})
	}
	return items, nil
}

func (e *Extractor) processVideoPair(ctx context.Context, pair Pair, subfolder string, uploadIndex int) ([]entity.Item, error) {
	frames, err := e.DecodeFrames(ctx, pair.ImageName, pair.ImageData)
	if err != nil {
		return nil, err
	}
	maskFrames, err := e.DecodeFrames(ctx, pair.MaskName, pair.MaskData)
	if err != nil {
		return nil, err
	}

	if len(frames) != len(maskFrames) {
		return nil, apperr.New(apperr.ValidationFailed,
			"frame count mismatch between video and mask video: %d vs %d",
			len(frames), len(maskFrames))
	}

	imageBase := baseName(pair.ImageName)
	maskBase := baseName(pair.MaskName)
	items := make([]entity.Item, 0, len(frames))
	for i := range frames {
		if !IsBinaryMask(maskFrames[i]) {
			return nil, apperr.New(apperr.ValidationFailed,
				"mask frame %d of %s is not a binary black/white image", i, pair.MaskName)
		}

		framePath, err := e.storage.SaveFile(ctx,
			frames[i], fmt.Sprintf("%s_frame_%03d.png", imageBase, i), subfolder)
		if err != nil {
			return nil, fmt.Errorf("save frame %d: %w", i, err)
		}
		maskPath, err := e.storage.SaveFile(ctx,
			maskFrames[i], fmt.Sprintf("%s_frame_%03d.png", maskBase, i), subfolder)
		if err != nil {
			return nil, fmt.Errorf("save mask frame %d: %w", i, err)
		}

		idx := i
		items = append(items, entity.Item{
			ImagePath:   framePath,
			MaskPath:    maskPath,
			FrameIndex:  &idx,
			UploadIndex: uploadIndex,
		})
	}
	return items, nil
}

// DecodeFrames stages a video buffer to disk, runs the frame decoder and
// reads the frames back, removing every intermediate file regardless of
// outcome.
func (e *Extractor) DecodeFrames(ctx context.Context, name string, data []byte) ([][]byte, error) {
	if err := e.decoder.Available(ctx); err != nil {
		return nil, err
	}

	workDir := filepath.Join(e.tempDir,
		fmt.Sprintf("decode_%d_%s", time.Now().UnixNano(), uuid.NewString()[:8]))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create decode workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "input"+strings.ToLower(filepath.Ext(name)))
	if err := os.WriteFile(videoPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("stage video: %w", err)
	}

	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	paths, err := e.decoder.ExtractFrames(ctx, videoPath, framesDir)
	if err != nil {
		return nil, err
	}

	// Zero-padded numbering makes lexicographic order the frame order.
	sort.Strings(paths)

	frames := make([][]byte, 0, len(paths))
	for _, p := range paths {
		buf, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", filepath.Base(p), err)
		}
		frames = append(frames, buf)
	}

	e.logger.Debug("video decoded",
		zap.String("video", name),
		zap.Int("frames", len(frames)),
	)
	return frames, nil
}

func baseName(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}
