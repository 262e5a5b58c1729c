package media

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"go.uber.org/zap"
)

// ArchiveResult is what processing one archive yields. PairsProcessed
// drives the upload-index advance: one per pair, never per frame.
type ArchiveResult struct {
	Items          []entity.Item
	PairsProcessed int
}

// ArchiveProcessor walks a zip of subdirectories, pairs images with masks
// inside each one and delegates every pair to the extractor. Failures are
// isolated at three levels: a bad pair does not abort its subdirectory, a
// bad subdirectory does not abort the archive, and only a zero total yield
// fails the whole operation.
type ArchiveProcessor struct {
	extractor *Extractor
	logger    *zap.Logger
}

func NewArchiveProcessor(extractor *Extractor, logger *zap.Logger) *ArchiveProcessor {
	return &ArchiveProcessor{extractor: extractor, logger: logger}
}

type archiveGroup struct {
	images []*zip.File
	masks  []*zip.File
}

// Process extracts items from archiveData. Every successfully processed
// pair advances the upload index by one starting at startUploadIndex.
func (p *ArchiveProcessor) Process(ctx context.Context, archiveData []byte, subfolder string, startUploadIndex int) (*ArchiveResult, error) {
	reader, err := zip.NewReader(bytes.NewReader(archiveData), int64(len(archiveData)))
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidFormat, err, "open archive")
	}

	groups := p.groupEntries(reader)

	subdirs := make([]string, 0, len(groups))
	for name := range groups {
		subdirs = append(subdirs, name)
	}
	sort.Strings(subdirs)

	result := &ArchiveResult{}
	for _, subdir := range subdirs {
		group := groups[subdir]
		log := p.logger.With(zap.String("subdir", subdir))

		if len(group.images) == 0 || len(group.masks) == 0 {
			log.Warn("skipping subdirectory without a complete image/mask set",
				zap.Int("images", len(group.images)),
				zap.Int("masks", len(group.masks)),
			)
			continue
		}
		if !p.hasSupportedPairing(group) {
			log.Warn("skipping subdirectory with no supported image/mask combination")
			continue
		}

		p.processGroup(ctx, group, subfolder, startUploadIndex, result, log)
	}

	if result.PairsProcessed == 0 {
		return nil, apperr.New(apperr.InvalidFormat,
			"archive yielded no valid image-mask pairs")
	}

	return result, nil
}

// groupEntries buckets non-directory entries by top-level subdirectory and
// classifies each as mask or image by the "mask" naming convention.
// Root-level and unsupported entries are skipped.
func (p *ArchiveProcessor) groupEntries(reader *zip.Reader) map[string]*archiveGroup {
	groups := make(map[string]*archiveGroup)
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		subdir := TopLevelDir(f.Name)
		if subdir == "" {
			p.logger.Debug("skipping root-level archive entry", zap.String("entry", f.Name))
			continue
		}
		if ClassifyName(f.Name) == KindUnsupported {
			p.logger.Debug("skipping unsupported archive entry", zap.String("entry", f.Name))
			continue
		}

		group, ok := groups[subdir]
		if !ok {
			group = &archiveGroup{}
			groups[subdir] = group
		}
		if IsMaskPath(f.Name) {
			group.masks = append(group.masks, f)
		} else {
			group.images = append(group.images, f)
		}
	}
	return groups
}

func (p *ArchiveProcessor) hasSupportedPairing(group *archiveGroup) bool {
	for _, img := range group.images {
		for _, mask := range group.masks {
			if SupportedPairing(ClassifyName(img.Name), ClassifyName(mask.Name)) {
				return true
			}
		}
	}
	return false
}

// processGroup pairs the group's entries index-wise in lexicographic order.
// Excess entries in the longer list are dropped; a failing pair is logged
// and skipped.
func (p *ArchiveProcessor) processGroup(ctx context.Context, group *archiveGroup, subfolder string, startUploadIndex int, result *ArchiveResult, log *zap.Logger) {
	sortEntries(group.images)
	sortEntries(group.masks)

	n := len(group.images)
	if len(group.masks) < n {
		n = len(group.masks)
	}

	for i := 0; i < n; i++ {
		img, mask := group.images[i], group.masks[i]

		pair, err := readPair(img, mask)
		if err != nil {
			log.Warn("skipping unreadable pair",
				zap.String("image", img.Name),
				zap.String("mask", mask.Name),
				zap.Error(err),
			)
			continue
		}

		items, err := p.extractor.ProcessPair(ctx, pair, subfolder, startUploadIndex+result.PairsProcessed)
		if err != nil {
			log.Warn("skipping failed pair",
				zap.String("image", img.Name),
				zap.String("mask", mask.Name),
				zap.Error(err),
			)
			continue
		}

		result.Items = append(result.Items, items...)
		result.PairsProcessed++
	}
}

func sortEntries(files []*zip.File) {
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
}

func readPair(img, mask *zip.File) (Pair, error) {
	imgData, err := readEntry(img)
	if err != nil {
		return Pair{}, fmt.Errorf("read %s: %w", img.Name, err)
	}
	maskData, err := readEntry(mask)
	if err != nil {
		return Pair{}, fmt.Errorf("read %s: %w", mask.Name, err)
	}
	return Pair{
		ImageName: img.Name,
		ImageData: imgData,
		MaskName:  mask.Name,
		MaskData:  maskData,
	}, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
