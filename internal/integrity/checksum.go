package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ChecksumOptions configures the streaming checksum computation.
type ChecksumOptions struct {
	// BufferSize is the chunk size for streaming reads (default 32KB)
	BufferSize int
}

// DefaultChecksumOptions returns the recommended defaults.
func DefaultChecksumOptions() ChecksumOptions {
	return ChecksumOptions{BufferSize: 32 * 1024}
}

// Checksum computes the SHA-256 digest of reader contents in streamed
// chunks, honoring context cancellation between chunks.
func Checksum(ctx context.Context, reader io.Reader, opts ChecksumOptions) (string, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultChecksumOptions().BufferSize
	}

	h := sha256.New()
	buf := make([]byte, opts.BufferSize)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return "", fmt.Errorf("failed to hash chunk: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read for checksum: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
