package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/integrations/github/githubtest"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

type fakeDownloader struct {
	files map[string][]byte
	calls atomic.Int32
	gate  chan struct{} // if set, Download blocks until closed
}

func (d *fakeDownloader) Download(ctx context.Context, e catalog.Entry, w io.Writer) error {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	data, ok := d.files[e.Name]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "no asset %s", e.Name)
	}
	if githubtest.Sum(data) != e.SHA256 {
		return errors.New(errors.ErrCodeChecksumMismatch, "checksum mismatch for %s", e.Name)
	}
	_, err := w.Write(data)
	return err
}

type fixture struct {
	store *Store
	dl    *fakeDownloader
	cat   *catalog.Catalog
	l     registry.Layout
}

func newFixture(t *testing.T, archives map[string][]byte) *fixture {
	t.Helper()
	l := registry.Layout{Root: t.TempDir()}
	dl := &fakeDownloader{files: archives}

	var entries []catalog.Entry
	for name, data := range archives {
		a, err := version.ParseAssetName(name)
		if err != nil {
			t.Fatalf("ParseAssetName(%q) error: %v", name, err)
		}
		entries = append(entries, catalog.Entry{
			Build: a.Build, Name: name, URL: "https://example.invalid/" + name,
			ReleaseTag: a.ReleaseTag, Flavor: a.Flavor, Format: a.Format, SHA256: githubtest.Sum(data),
		})
	}
	return &fixture{
		store: New(registry.NewStore(l), dl, log.New(io.Discard)),
		dl:    dl,
		cat:   catalog.New("x86_64-unknown-linux-gnu", "test", time.Now(), entries),
		l:     l,
	}
}

const asset312 = "cpython-3.12.2+20240224-x86_64-unknown-linux-gnu-install_only.tar.gz"

func id312(t *testing.T) version.BuildID {
	t.Helper()
	id, err := version.ParseBuildID("3.12.2")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func visibleEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestEnsureInstalledIdempotent(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	ctx := context.Background()
	id := id312(t)

	first, installed, err := f.store.EnsureInstalled(ctx, id, f.cat)
	if err != nil {
		t.Fatalf("EnsureInstalled() error: %v", err)
	}
	if !installed {
		t.Error("first call should install")
	}

	second, installed, err := f.store.EnsureInstalled(ctx, id, f.cat)
	if err != nil {
		t.Fatalf("EnsureInstalled() second error: %v", err)
	}
	if installed {
		t.Error("second call should not install")
	}
	if f.dl.calls.Load() != 1 {
		t.Errorf("downloads = %d, want 1", f.dl.calls.Load())
	}
	if first != second {
		t.Errorf("records differ: %+v vs %+v", first, second)
	}
	if first.Dir != f.l.InterpreterDir(id) || first.ReleaseTag != "20240224" {
		t.Errorf("record = %+v", first)
	}
}

func TestEnsureInstalledRelocatesSysconfig(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	id := id312(t)

	if _, _, err := f.store.EnsureInstalled(context.Background(), id, f.cat); err != nil {
		t.Fatalf("EnsureInstalled() error: %v", err)
	}

	root := filepath.Join(f.l.InterpreterDir(id), "python")
	data, err := os.ReadFile(filepath.Join(root, "lib", "python3.12", "_sysconfigdata__linux_x86_64-linux-gnu.py"))
	if err != nil {
		t.Fatalf("read sysconfig: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "'/install") || strings.Contains(text, "=/install") {
		t.Errorf("sysconfig still references /install: %s", text)
	}
	if !strings.Contains(text, "'prefix': '"+root+"'") || !strings.Contains(text, "--prefix="+root) {
		t.Errorf("sysconfig not relocated to %s: %s", root, text)
	}

	pc, err := os.ReadFile(filepath.Join(root, "lib", "pkgconfig", "python3.pc"))
	if err != nil {
		t.Fatalf("read pkgconfig: %v", err)
	}
	if !strings.HasPrefix(string(pc), "prefix="+root+"\n") {
		t.Errorf("pkgconfig = %q", pc)
	}
}

func TestEnsureInstalledFullLayout(t *testing.T) {
	const name = "cpython-3.13.0+20241008-x86_64-unknown-linux-gnu-debug-full.tar.zst"
	files := map[string]string{
		"python/install/bin/python3":         "#!/bin/sh\n",
		"python/build/objects/main.o":        "obj",
		"python/install/lib/pkgconfig/x.pc": "prefix=/install\n",
	}
	f := newFixture(t, map[string][]byte{name: githubtest.TarZst(files)})
	id, err := version.ParseBuildID("3.13.0-debug")
	if err != nil {
		t.Fatal(err)
	}

	in, _, err := f.store.EnsureInstalled(context.Background(), id, f.cat)
	if err != nil {
		t.Fatalf("EnsureInstalled() error: %v", err)
	}
	if !registry.InterpreterComplete(in.Dir) {
		t.Error("python/install was not flattened into python/")
	}
	if _, err := os.Stat(filepath.Join(in.Dir, "python", "build")); !os.IsNotExist(err) {
		t.Error("build artifacts should be dropped")
	}
}

func TestEnsureInstalledChecksumMismatch(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	f.cat.Entries[0].SHA256 = githubtest.Sum([]byte("other"))
	id := id312(t)

	_, _, err := f.store.EnsureInstalled(context.Background(), id, f.cat)
	if !errors.Is(err, errors.ErrCodeDownloadFailed) || !errors.Is(err, errors.ErrCodeChecksumMismatch) {
		t.Fatalf("EnsureInstalled() error = %v, want DOWNLOAD_FAILED/CHECKSUM_MISMATCH", err)
	}
	assertNothingInstalled(t, f)
}

func TestEnsureInstalledCorruptArchive(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: []byte("truncated")})

	_, _, err := f.store.EnsureInstalled(context.Background(), id312(t), f.cat)
	if !errors.Is(err, errors.ErrCodeDownloadFailed) {
		t.Fatalf("EnsureInstalled() error = %v, want DOWNLOAD_FAILED", err)
	}
	assertNothingInstalled(t, f)
	if _, err := os.Stat(filepath.Join(f.l.DownloadsDir(), asset312)); !os.IsNotExist(err) {
		t.Error("corrupt archive should be evicted from the download cache")
	}
}

func TestEnsureInstalledArchiveWithoutInterpreter(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(map[string]string{"python/README": "hi"})})

	_, _, err := f.store.EnsureInstalled(context.Background(), id312(t), f.cat)
	if !errors.Is(err, errors.ErrCodeDownloadFailed) {
		t.Fatalf("EnsureInstalled() error = %v, want DOWNLOAD_FAILED", err)
	}
	assertNothingInstalled(t, f)
}

func assertNothingInstalled(t *testing.T, f *fixture) {
	t.Helper()
	r, err := f.store.Registry.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(r.Interpreters) != 0 {
		t.Errorf("interpreters recorded after failure: %v", r.InstalledBuilds())
	}
	if len(r.Reservations) != 0 {
		t.Errorf("reservation left behind: %v", r.Reservations)
	}
	if names := visibleEntries(t, f.l.PythonsDir()); len(names) != 0 {
		t.Errorf("visible partial directories: %v", names)
	}
	if hidden, _ := filepath.Glob(filepath.Join(f.l.PythonsDir(), registry.TempPrefix+"*")); len(hidden) != 0 {
		t.Errorf("temp directories left behind: %v", hidden)
	}
}

func TestEnsureInstalledNotInCatalog(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.store.EnsureInstalled(context.Background(), id312(t), f.cat)
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("EnsureInstalled() error = %v, want NOT_FOUND", err)
	}
	if _, _, err := f.store.EnsureInstalled(context.Background(), id312(t), nil); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("EnsureInstalled(nil catalog) error = %v, want NOT_FOUND", err)
	}
}

func TestEnsureInstalledReusesDownloadCache(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	ctx := context.Background()
	id := id312(t)

	if _, _, err := f.store.EnsureInstalled(ctx, id, f.cat); err != nil {
		t.Fatalf("EnsureInstalled() error: %v", err)
	}
	if err := f.store.Remove(ctx, id); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := os.Stat(f.l.InterpreterDir(id)); !os.IsNotExist(err) {
		t.Fatal("Remove() left the directory behind")
	}

	if _, installed, err := f.store.EnsureInstalled(ctx, id, f.cat); err != nil || !installed {
		t.Fatalf("reinstall = %v, %v", installed, err)
	}
	if f.dl.calls.Load() != 1 {
		t.Errorf("downloads = %d, want 1 (cached archive reused)", f.dl.calls.Load())
	}
}

func TestClearDownloads(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	ctx := context.Background()
	id := id312(t)

	if _, _, err := f.store.EnsureInstalled(ctx, id, f.cat); err != nil {
		t.Fatalf("EnsureInstalled() error: %v", err)
	}
	partial := filepath.Join(f.l.DownloadsDir(), ".partial-123")
	if err := os.WriteFile(partial, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, size, err := f.store.ClearDownloads()
	if err != nil {
		t.Fatalf("ClearDownloads() error: %v", err)
	}
	if n != 1 || size == 0 {
		t.Errorf("ClearDownloads() = %d files, %d bytes", n, size)
	}
	if _, err := os.Stat(filepath.Join(f.l.DownloadsDir(), asset312)); !os.IsNotExist(err) {
		t.Error("archive should be removed")
	}
	if _, err := os.Stat(partial); err != nil {
		t.Error("partial download should be kept")
	}

	// The installed interpreter is unaffected.
	if _, ok, _ := f.store.Installed(id); !ok {
		t.Error("interpreter should stay installed")
	}
}

func TestEnsureInstalledConcurrent(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	f.dl.gate = make(chan struct{})
	id := id312(t)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = f.store.EnsureInstalled(context.Background(), id, f.cat)
		}()
	}
	close(f.dl.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if f.dl.calls.Load() != 1 {
		t.Errorf("downloads = %d, want 1", f.dl.calls.Load())
	}
	list, err := f.store.ListInstalled()
	if err != nil || len(list) != 1 {
		t.Errorf("ListInstalled() = %v, %v", list, err)
	}
}

func TestRemoveWithDependents(t *testing.T) {
	f := newFixture(t, map[string][]byte{asset312: githubtest.TarGz(githubtest.Interpreter("3.12"))})
	ctx := context.Background()
	id := id312(t)

	if _, _, err := f.store.EnsureInstalled(ctx, id, f.cat); err != nil {
		t.Fatalf("EnsureInstalled() error: %v", err)
	}
	venv := f.l.VirtualenvDir("proj", id)
	os.MkdirAll(venv, 0o755)
	os.WriteFile(filepath.Join(venv, registry.MarkerFile), nil, 0o644)

	err := f.store.Remove(ctx, id)
	if !errors.Is(err, errors.ErrCodeDependentVirtualenvs) {
		t.Fatalf("Remove() error = %v, want DEPENDENT_VIRTUALENVS", err)
	}
	if !registry.InterpreterComplete(f.l.InterpreterDir(id)) {
		t.Error("refused removal must keep the interpreter")
	}
}

func TestRemoveNotInstalled(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.store.Remove(context.Background(), id312(t)); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("Remove() error = %v, want NOT_FOUND", err)
	}
}
