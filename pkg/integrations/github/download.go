package github

import (
	"context"
	"io"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/integrations"
)

// Download streams the archive for e into w and verifies its SHA-256.
// The digest comes from the asset metadata, falling back to the
// published checksum file. Without either the download is refused.
func (c *Client) Download(ctx context.Context, e catalog.Entry, w io.Writer) error {
	digest, err := c.Checksum(ctx, e)
	if err != nil {
		return err
	}
	if _, err := c.DownloadVerified(ctx, e.URL, digest, w); err != nil {
		if errors.Is(err, errors.ErrCodeChecksumMismatch) {
			return err
		}
		return errors.Wrap(integrations.CodeOf(err), err, "download %s", e.Name)
	}
	return nil
}

// Checksum returns the expected hex digest for e.
func (c *Client) Checksum(ctx context.Context, e catalog.Entry) (string, error) {
	if e.SHA256 != "" {
		return e.SHA256, nil
	}
	if e.ChecksumURL == "" {
		return "", errors.New(errors.ErrCodeDownloadFailed, "no checksum published for %s", e.Name)
	}

	text, err := c.GetText(ctx, e.ChecksumURL)
	if err != nil {
		return "", errors.Wrap(integrations.CodeOf(err), err, "fetch checksum for %s", e.Name)
	}
	digest := integrations.ParseChecksum(text, e.Name)
	if digest == "" {
		return "", errors.New(errors.ErrCodeDownloadFailed, "checksum file does not list %s", e.Name)
	}
	return digest, nil
}
