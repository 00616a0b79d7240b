// Package archive extracts interpreter tarballs.
//
// Archives are gzip or zstd compressed tar streams. Extraction refuses any
// entry that would land outside the destination directory, either through
// its own path or through a symlink or hard link target.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// Compression identifies the compression of a tar stream.
type Compression string

const (
	Gzip Compression = "gz"
	Zstd Compression = "zst"
)

// CompressionOf infers the compression from an archive file name.
func CompressionOf(name string) (Compression, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return Zstd, nil
	default:
		return "", errors.New(errors.ErrCodeUnsupported, "unsupported archive %q", name)
	}
}

// Extract decompresses r and unpacks it into dest, which must exist.
// It returns the number of regular file bytes written.
func Extract(r io.Reader, c Compression, dest string) (int64, error) {
	var src io.Reader
	switch c {
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return 0, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return 0, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		src = zr
	default:
		return 0, errors.New(errors.ErrCodeUnsupported, "unsupported compression %q", c)
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}
	return untar(tar.NewReader(src), root)
}

func untar(tr *tar.Reader, root string) (int64, error) {
	var written int64
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("read archive: %w", err)
		}

		target, err := within(root, hdr.Name)
		if err != nil {
			return written, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
		case tar.TypeReg:
			n, err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm())
			written += n
			if err != nil {
				return written, err
			}
		case tar.TypeSymlink:
			if err := checkLink(root, target, hdr.Linkname); err != nil {
				return written, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return written, err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return written, err
			}
		case tar.TypeLink:
			source, err := within(root, hdr.Linkname)
			if err != nil {
				return written, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return written, err
			}
			os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return written, err
			}
		default:
			// Devices, fifos and pax globals have no place in an interpreter tree.
		}
	}
}

// within resolves name under root and rejects anything escaping it.
func within(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", errors.New(errors.ErrCodeDownloadFailed, "archive entry has absolute path %q", name)
	}
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeDownloadFailed, "archive entry escapes destination: %q", name)
	}
	return target, nil
}

func checkLink(root, target, link string) error {
	if filepath.IsAbs(link) {
		return errors.New(errors.ErrCodeDownloadFailed, "archive symlink %q has absolute target %q", target, link)
	}
	rel, err := filepath.Rel(root, filepath.Join(filepath.Dir(target), link))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.New(errors.ErrCodeDownloadFailed, "archive symlink %q escapes destination", target)
	}
	return nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}
