package media

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// DigestFile returns the BLAKE3 hash of a file, hex encoded with a "b3:"
// prefix. Uploaded artifacts are stored content-addressed by this digest,
// which makes re-uploads and repeated cleanup naturally idempotent.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for digest: %w", err)
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return "b3:" + hex.EncodeToString(h.Sum(nil)), nil
}
