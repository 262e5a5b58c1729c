package port

import "context"

// FrameDecoder turns a video file into an ordered sequence of still frames
// on disk. Implementations must honor ctx cancellation by killing the
// underlying decode and must clean up whatever partial output the kill
// leaves behind in outputDir.
type FrameDecoder interface {
	// Available reports whether the decoding engine is reachable.
	Available(ctx context.Context) error
	// ExtractFrames decodes videoPath at a fixed one-frame-per-second
	// rate into outputDir and returns the frame file paths in frame
	// order.
	ExtractFrames(ctx context.Context, videoPath, outputDir string) ([]string, error)
}
