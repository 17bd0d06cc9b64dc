package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FFmpegSplitter slices audio with the ffmpeg binary. Chunks are
// re-encoded to mono 16kHz MP3, the format the provider accepts.
type FFmpegSplitter struct {
	Binary string // defaults to "ffmpeg" on PATH
}

var _ Splitter = (*FFmpegSplitter)(nil)

// NewFFmpegSplitter creates a splitter using ffmpeg from PATH.
func NewFFmpegSplitter() *FFmpegSplitter {
	return &FFmpegSplitter{Binary: "ffmpeg"}
}

// Split cuts sourcePath into one chunk file per range under outDir.
func (f *FFmpegSplitter) Split(ctx context.Context, sourcePath string, ranges []Range, outDir string) ([]Chunk, error) {
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	chunks := make([]Chunk, 0, len(ranges))
	for i, r := range ranges {
		out := filepath.Join(outDir, fmt.Sprintf("chunk_%04d.mp3", i))

		// ffmpeg -y -ss start -to end -i source -ac 1 -ar 16000 out
		cmd := exec.CommandContext(ctx, f.binary(),
			"-y",
			"-ss", fmt.Sprintf("%.3f", r.Start),
			"-to", fmt.Sprintf("%.3f", r.End),
			"-i", sourcePath,
			"-ac", "1", "-ar", "16000",
			out,
		)
		if output, err := cmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("ffmpeg chunk %d [%.0f-%.0f): %w: %s", i, r.Start, r.End, err, output)
		}
		chunks = append(chunks, Chunk{Range: r, Path: out})
	}
	return chunks, nil
}

func (f *FFmpegSplitter) binary() string {
	if f.Binary != "" {
		return f.Binary
	}
	return "ffmpeg"
}

// StubSplitter creates empty placeholder chunk files without invoking
// ffmpeg. Used by tests and keyless development mode.
type StubSplitter struct{}

var _ Splitter = (*StubSplitter)(nil)

// Split writes one placeholder file per range.
func (StubSplitter) Split(_ context.Context, _ string, ranges []Range, outDir string) ([]Chunk, error) {
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	chunks := make([]Chunk, 0, len(ranges))
	for i, r := range ranges {
		out := filepath.Join(outDir, fmt.Sprintf("chunk_%04d.mp3", i))
		if err := os.WriteFile(out, []byte("stub"), 0600); err != nil {
			return nil, err
		}
		chunks = append(chunks, Chunk{Range: r, Path: out})
	}
	return chunks, nil
}
