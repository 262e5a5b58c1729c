package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDecoder emits canned frames keyed by the staged video's contents, so
// the timeout/kill/cleanup triangle stays testable without ffmpeg.
type fakeDecoder struct {
	frames   map[string][][]byte
	err      error
	availErr error
}

func (d *fakeDecoder) Available(context.Context) error { return d.availErr }

func (d *fakeDecoder) ExtractFrames(_ context.Context, videoPath, outputDir string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return nil, err
	}
	frames, ok := d.frames[string(data)]
	if !ok || len(frames) == 0 {
		return nil, apperr.New(apperr.InvalidFormat, "no frames extracted: video may be corrupt or unsupported")
	}
	paths := make([]string, 0, len(frames))
	for i, frame := range frames {
		p := filepath.Join(outputDir, fmt.Sprintf("frame_%03d.png", i))
		if err := os.WriteFile(p, frame, 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	saved   map[string][]byte
	cleaned []string
	saveErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{saved: make(map[string][]byte)}
}

func (s *fakeStorage) SaveFile(_ context.Context, data []byte, suggestedName, subfolder string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	key := subfolder + "/" + suggestedName
	s.saved[key] = data
	return key, nil
}

func (s *fakeStorage) ReadFile(_ context.Context, storagePath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.saved[storagePath]
	if !ok {
		return nil, fmt.Errorf("object %s not found", storagePath)
	}
	return data, nil
}

func (s *fakeStorage) CleanupTempFiles(_ context.Context, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned = append(s.cleaned, paths...)
}

func (s *fakeStorage) PresignedReadURL(_ context.Context, storagePath string, _ time.Duration) (string, error) {
	return "https://storage.local/" + storagePath, nil
}

func newTestExtractor(t *testing.T, decoder *fakeDecoder, storage *fakeStorage) *Extractor {
	t.Helper()
	return NewExtractor(decoder, storage, t.TempDir(), zap.NewNop())
}

func TestProcessPair_ImageImage(t *testing.T) {
	storage := newFakeStorage()
	ex := newTestExtractor(t, &fakeDecoder{}, storage)

	items, err := ex.ProcessPair(context.Background(), Pair{
		ImageName: "img.png",
		ImageData: grayImage(t, 4, 4, 0x7F),
		MaskName:  "mask.png",
		MaskData:  grayImage(t, 4, 4, 0xFF),
	}, "user1/ds1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Nil(t, items[0].FrameIndex)
	assert.Equal(t, 0, items[0].UploadIndex)
	assert.Contains(t, storage.saved, items[0].ImagePath)
	assert.Contains(t, storage.saved, items[0].MaskPath)
}

func TestProcessPair_NonBinaryMaskRejected(t *testing.T) {
	ex := newTestExtractor(t, &fakeDecoder{}, newFakeStorage())

	_, err := ex.ProcessPair(context.Background(), Pair{
		ImageName: "img.png",
		ImageData: grayImage(t, 4, 4, 0x7F),
		MaskName:  "mask.png",
		MaskData:  grayImage(t, 4, 4, 0x80), // gray, not binary
	}, "user1/ds1", 0)
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))
}

func TestProcessPair_VideoImage(t *testing.T) {
	videoData := []byte("fake-video-3-frames")
	decoder := &fakeDecoder{frames: map[string][][]byte{
		string(videoData): {
			grayImage(t, 2, 2, 10),
			grayImage(t, 2, 2, 20),
			grayImage(t, 2, 2, 30),
		},
	}}
	storage := newFakeStorage()
	ex := newTestExtractor(t, decoder, storage)

	items, err := ex.ProcessPair(context.Background(), Pair{
		ImageName: "clip.mp4",
		ImageData: videoData,
		MaskName:  "mask.png",
		MaskData:  grayImage(t, 2, 2, 0x00),
	}, "user1/ds1", 4)
	require.NoError(t, err)
	require.Len(t, items, 3)

	for i, item := range items {
		require.NotNil(t, item.FrameIndex)
		assert.Equal(t, i, *item.FrameIndex)
		assert.Equal(t, 4, item.UploadIndex)
		// Every frame shares the single validated mask.
		assert.Equal(t, items[0].MaskPath, item.MaskPath)
	}
}

func TestProcessPair_VideoVideo_FrameCountMismatch(t *testing.T) {
	videoData := []byte("video-10")
	maskData := []byte("maskvideo-7")
	frames := func(n int) [][]byte {
		out := make([][]byte, n)
		for i := range out {
			out[i] = grayImage(t, 2, 2, 0x00)
		}
		return out
	}
	decoder := &fakeDecoder{frames: map[string][][]byte{
		string(videoData): frames(10),
		string(maskData):  frames(7),
	}}
	ex := newTestExtractor(t, decoder, newFakeStorage())

	_, err := ex.ProcessPair(context.Background(), Pair{
		ImageName: "clip.mp4",
		ImageData: videoData,
		MaskName:  "maskclip.mp4",
		MaskData:  maskData,
	}, "user1/ds1", 0)
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "10 vs 7")
}

func TestProcessPair_VideoVideo_EqualFrames(t *testing.T) {
	videoData := []byte("video-4")
	maskData := []byte("maskvideo-4")
	imageFrames := make([][]byte, 4)
	maskFrames := make([][]byte, 4)
	for i := range imageFrames {
		imageFrames[i] = grayImage(t, 2, 2, 0x7F)
		maskFrames[i] = grayImage(t, 2, 2, 0xFF)
	}
	decoder := &fakeDecoder{frames: map[string][][]byte{
		string(videoData): imageFrames,
		string(maskData):  maskFrames,
	}}
	ex := newTestExtractor(t, decoder, newFakeStorage())

	items, err := ex.ProcessPair(context.Background(), Pair{
		ImageName: "clip.mp4",
		ImageData: videoData,
		MaskName:  "maskclip.mp4",
		MaskData:  maskData,
	}, "user1/ds1", 2)
	require.NoError(t, err)
	require.Len(t, items, 4)
	for i, item := range items {
		require.NotNil(t, item.FrameIndex)
		assert.Equal(t, i, *item.FrameIndex)
		assert.Equal(t, 2, item.UploadIndex)
		assert.NotEqual(t, item.ImagePath, item.MaskPath)
	}
}

func TestProcessPair_VideoVideo_NonBinaryMaskFrame(t *testing.T) {
	videoData := []byte("video-2")
	maskData := []byte("maskvideo-2")
	decoder := &fakeDecoder{frames: map[string][][]byte{
		string(videoData): {grayImage(t, 2, 2, 0x7F), grayImage(t, 2, 2, 0x7F)},
		string(maskData):  {grayImage(t, 2, 2, 0xFF), grayImage(t, 2, 2, 0x42)},
	}}
	ex := newTestExtractor(t, decoder, newFakeStorage())

	_, err := ex.ProcessPair(context.Background(), Pair{
		ImageName: "clip.mp4",
		ImageData: videoData,
		MaskName:  "maskclip.mp4",
		MaskData:  maskData,
	}, "user1/ds1", 0)
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "mask frame 1")
}

func TestProcessPair_UnsupportedCombination(t *testing.T) {
	ex := newTestExtractor(t, &fakeDecoder{}, newFakeStorage())

	_, err := ex.ProcessPair(context.Background(), Pair{
		ImageName: "img.png",
		ImageData: []byte("x"),
		MaskName:  "maskclip.mp4",
		MaskData:  []byte("y"),
	}, "user1/ds1", 0)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidFormat, apperr.KindOf(err))
}

func TestDecodeFrames_DecoderUnavailable(t *testing.T) {
	decoder := &fakeDecoder{availErr: apperr.New(apperr.Unavailable, "ffmpeg not reachable")}
	ex := newTestExtractor(t, decoder, newFakeStorage())

	_, err := ex.DecodeFrames(context.Background(), "clip.mp4", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperr.Unavailable, apperr.KindOf(err))
}

func TestDecodeFrames_CleansWorkDir(t *testing.T) {
	videoData := []byte("video-2")
	decoder := &fakeDecoder{frames: map[string][][]byte{
		string(videoData): {grayImage(t, 2, 2, 1), grayImage(t, 2, 2, 2)},
	}}
	tempDir := t.TempDir()
	ex := NewExtractor(decoder, newFakeStorage(), tempDir, zap.NewNop())

	frames, err := ex.DecodeFrames(context.Background(), "clip.mp4", videoData)
	require.NoError(t, err)
	assert.Len(t, frames, 2)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "decode workdir must not outlive the call")
}

func TestDecodeFrames_CleansWorkDirOnFailure(t *testing.T) {
	decoder := &fakeDecoder{err: apperr.New(apperr.Timeout, "video decode exceeded 60s and was killed")}
	tempDir := t.TempDir()
	ex := NewExtractor(decoder, newFakeStorage(), tempDir, zap.NewNop())

	_, err := ex.DecodeFrames(context.Background(), "clip.mp4", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperr.Timeout, apperr.KindOf(err))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
