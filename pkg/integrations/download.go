package integrations

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// DownloadVerified streams url into w while hashing it, then compares the
// SHA-256 digest with want (hex, case-insensitive). A mismatch fails with
// CHECKSUM_MISMATCH; the caller must discard whatever was written to w.
func (c *Client) DownloadVerified(ctx context.Context, url, want string, w io.Writer) (int64, error) {
	want = strings.ToLower(strings.TrimSpace(want))
	if len(want) != sha256.Size*2 {
		return 0, errors.New(errors.ErrCodeDownloadFailed, "no usable checksum for %s", url)
	}

	h := sha256.New()
	n, err := c.Stream(ctx, url, io.MultiWriter(w, h))
	if err != nil {
		return n, err
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return n, errors.New(errors.ErrCodeChecksumMismatch, "checksum mismatch for %s: expected %s, got %s", url, want, got)
	}
	return n, nil
}

// ParseChecksum extracts the digest for name from a checksum file. Both
// single-digest files ("<hex>" or "<hex>  name") and SHA256SUMS listings
// are understood. It returns "" if no digest is found.
func ParseChecksum(text, name string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for _, line := range lines {
		fields := strings.Fields(line)
		switch {
		case len(fields) == 1 && len(lines) == 1:
			return fields[0]
		case len(fields) >= 2 && strings.TrimPrefix(fields[1], "*") == name:
			return fields[0]
		}
	}
	return ""
}
