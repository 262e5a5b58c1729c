package port

import (
	"context"
	"time"
)

// FileStorage stores ingested image and mask bytes and hands back opaque
// locators. CleanupTempFiles is best-effort; failures are logged by the
// caller, never propagated.
type FileStorage interface {
	SaveFile(ctx context.Context, data []byte, suggestedName, subfolder string) (string, error)
	ReadFile(ctx context.Context, storagePath string) ([]byte, error)
	CleanupTempFiles(ctx context.Context, paths []string)
	PresignedReadURL(ctx context.Context, storagePath string, ttl time.Duration) (string, error)
}
