// Package githubtest provides an in-memory python-build-standalone release
// server for tests.
package githubtest

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Asset is a file attached to a release.
type Asset struct {
	Name string
	Data []byte

	// Digest publishes the sha256 in the asset metadata.
	Digest bool
	// Sidecar publishes a "<name>.sha256" asset next to this one.
	Sidecar bool
}

// Release is one GitHub release.
type Release struct {
	Tag     string
	Created time.Time
	Assets  []Asset

	// Sums publishes a SHA256SUMS asset covering every asset.
	Sums bool
}

// Server serves the releases API and asset downloads for one repository.
type Server struct {
	*httptest.Server

	Owner string
	Repo  string

	mu       sync.Mutex
	releases []Release
	hits     map[string]int
	fail     map[string]int
}

// NewServer starts a server for owner/repo. Call Close when done.
func NewServer(owner, repo string, releases ...Release) *Server {
	s := &Server{
		Owner:    owner,
		Repo:     repo,
		releases: releases,
		hits:     make(map[string]int),
		fail:     make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.count)
	r.Get("/repos/{owner}/{repo}/releases", s.handleReleases)
	r.Get("/download/{tag}/{name}", s.handleDownload)
	s.Server = httptest.NewServer(r)
	return s
}

// Fail makes requests to path answer with status until cleared with 0.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, path)
		return
	}
	s.fail[path] = status
}

// Hits returns how many requests were made to path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Downloads returns the number of asset downloads, checksum files excluded.
func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path, c := range s.hits {
		if strings.HasPrefix(path, "/download/") && !strings.HasSuffix(path, ".sha256") && !strings.HasSuffix(path, "/SHA256SUMS") {
			n += c
		}
	}
	return n
}

// ReleasesPath is the API path of the release listing.
func (s *Server) ReleasesPath() string {
	return fmt.Sprintf("/repos/%s/%s/releases", s.Owner, s.Repo)
}

// DownloadURL returns the browser download URL of an asset.
func (s *Server) DownloadURL(tag, name string) string {
	return s.URL + "/download/" + tag + "/" + name
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		status := s.fail[r.URL.Path]
		s.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "owner") != s.Owner || chi.URLParam(r, "repo") != s.Repo {
		http.NotFound(w, r)
		return
	}

	perPage := queryInt(r, "per_page", 30)
	page := queryInt(r, "page", 1)

	s.mu.Lock()
	releases := append([]Release(nil), s.releases...)
	s.mu.Unlock()

	// Newest first, like the real API.
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Created.After(releases[j].Created)
	})

	start := (page - 1) * perPage
	out := []releaseJSON{}
	for i := start; i >= 0 && i < len(releases) && i < start+perPage; i++ {
		out = append(out, s.releaseJSON(releases[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	tag, name := chi.URLParam(r, "tag"), chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rel := range s.releases {
		if rel.Tag != tag {
			continue
		}
		if name == "SHA256SUMS" && rel.Sums {
			var b strings.Builder
			for _, a := range rel.Assets {
				fmt.Fprintf(&b, "%s  %s\n", Sum(a.Data), a.Name)
			}
			w.Write([]byte(b.String()))
			return
		}
		for _, a := range rel.Assets {
			switch {
			case a.Name == name:
				w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
				w.Write(a.Data)
				return
			case a.Sidecar && a.Name+".sha256" == name:
				w.Write([]byte(Sum(a.Data) + "\n"))
				return
			}
		}
	}
	http.NotFound(w, r)
}

type releaseJSON struct {
	TagName   string      `json:"tag_name"`
	CreatedAt time.Time   `json:"created_at"`
	Assets    []assetJSON `json:"assets"`
}

type assetJSON struct {
	Name   string `json:"name"`
	URL    string `json:"browser_download_url"`
	Size   int    `json:"size"`
	Digest string `json:"digest,omitempty"`
}

func (s *Server) releaseJSON(rel Release) releaseJSON {
	out := releaseJSON{TagName: rel.Tag, CreatedAt: rel.Created}
	for _, a := range rel.Assets {
		aj := assetJSON{Name: a.Name, URL: s.DownloadURL(rel.Tag, a.Name), Size: len(a.Data)}
		if a.Digest {
			aj.Digest = "sha256:" + Sum(a.Data)
		}
		out.Assets = append(out.Assets, aj)
		if a.Sidecar {
			out.Assets = append(out.Assets, assetJSON{Name: a.Name + ".sha256", URL: s.DownloadURL(rel.Tag, a.Name+".sha256")})
		}
	}
	if rel.Sums {
		out.Assets = append(out.Assets, assetJSON{Name: "SHA256SUMS", URL: s.DownloadURL(rel.Tag, "SHA256SUMS")})
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && n > 0 {
		return n
	}
	return def
}

// Sum returns the hex sha256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// TarGz builds a gzip-compressed tarball from path → content. Files under a
// bin/ directory are made executable; a value starting with "->" becomes a
// symlink to the rest of the string.
func TarGz(files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(gz, files)
	gz.Close()
	return buf.Bytes()
}

// TarZst is [TarGz] with zstd compression, as used by "full" archives.
func TarZst(files map[string]string) []byte {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		panic(err)
	}
	writeTar(zw, files)
	zw.Close()
	return buf.Bytes()
}

func writeTar(w io.Writer, files map[string]string) {
	tw := tar.NewWriter(w)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content := files[name]
		if target, ok := strings.CutPrefix(content, "->"); ok {
			tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeSymlink, Linkname: target, Mode: 0o777})
			continue
		}
		mode := int64(0o644)
		if strings.Contains(name, "/bin/") {
			mode = 0o755
		}
		tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: mode, Size: int64(len(content))})
		tw.Write([]byte(content))
	}
	tw.Close()
}

// Interpreter returns a minimal install_only archive layout for a build:
// python/bin/python3, a sysconfig module carrying the /install placeholder
// and a pkgconfig file.
func Interpreter(series string) map[string]string {
	return map[string]string{
		"python/bin/python3": "#!/bin/sh\n",
		"python/bin/python" + series: "#!/bin/sh\n",
		"python/lib/python" + series + "/_sysconfigdata__linux_x86_64-linux-gnu.py": "build_time_vars = {'prefix': '/install', 'LIBDIR': '/install/lib', 'CONFIG_ARGS': '--prefix=/install'}\n",
		"python/lib/pkgconfig/python3.pc": "prefix=/install\nlibdir=${prefix}/lib\n",
	}
}
