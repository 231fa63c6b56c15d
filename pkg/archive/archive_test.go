package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/minpm/minpm/internal/registrytest"
	"github.com/minpm/minpm/pkg/errors"
)

func mustTarball(t *testing.T, files ...registrytest.File) []byte {
	t.Helper()
	data, err := registrytest.Tarball(files...)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestExtractStripsRoot(t *testing.T) {
	data := mustTarball(t,
		registrytest.File{Name: "package.json", Body: `{"name":"x"}`},
		registrytest.File{Name: "lib/index.js", Body: "module.exports = 1;"},
	)
	dest := t.TempDir()

	if err := Extract(bytes.NewReader(data), dest); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	if got := readFile(t, filepath.Join(dest, "package.json")); got != `{"name":"x"}` {
		t.Errorf("package.json = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "lib", "index.js")); got != "module.exports = 1;" {
		t.Errorf("lib/index.js = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "package")); !os.IsNotExist(err) {
		t.Error("wrapper directory should not be created")
	}
}

func TestExtractAnyWrapperName(t *testing.T) {
	data, err := registrytest.RawTarball(
		[]*tar.Header{{Name: "node-v1/readme.md", Typeflag: tar.TypeReg, Mode: 0o644}},
		[]string{"hi"},
	)
	if err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := Extract(bytes.NewReader(data), dest); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "readme.md")); got != "hi" {
		t.Errorf("readme.md = %q", got)
	}
}

func TestExtractFileModes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on Windows")
	}
	data := mustTarball(t,
		registrytest.File{Name: "bin/cli.js", Body: "#!/usr/bin/env node", Mode: 0o755},
		registrytest.File{Name: "readonly.txt", Body: "r", Mode: 0o400},
	)
	dest := t.TempDir()
	if err := Extract(bytes.NewReader(data), dest); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want os.FileMode
	}{
		{"bin/cli.js", 0o755},
		{"readonly.txt", 0o644},
	}
	for _, tt := range tests {
		info, err := os.Stat(filepath.Join(dest, tt.path))
		if err != nil {
			t.Fatal(err)
		}
		if got := info.Mode().Perm(); got != tt.want {
			t.Errorf("%s mode = %o, want %o", tt.path, got, tt.want)
		}
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	data, err := registrytest.RawTarball(
		[]*tar.Header{{Name: "package/../../evil.txt", Typeflag: tar.TypeReg, Mode: 0o644}},
		[]string{"x"},
	)
	if err != nil {
		t.Fatal(err)
	}
	parent := t.TempDir()
	dest := filepath.Join(parent, "a", "b")

	err = Extract(bytes.NewReader(data), dest)
	if !errors.Is(err, errors.ErrCodeExtract) {
		t.Fatalf("Extract() error = %v, want EXTRACT_ERROR", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry was written")
	}
}

func TestExtractSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}

	t.Run("inside", func(t *testing.T) {
		data, err := registrytest.RawTarball(
			[]*tar.Header{
				{Name: "package/real.js", Typeflag: tar.TypeReg, Mode: 0o644},
				{Name: "package/link.js", Typeflag: tar.TypeSymlink, Linkname: "real.js"},
			},
			[]string{"ok", ""},
		)
		if err != nil {
			t.Fatal(err)
		}
		dest := t.TempDir()
		if err := Extract(bytes.NewReader(data), dest); err != nil {
			t.Fatalf("Extract() error: %v", err)
		}
		if got := readFile(t, filepath.Join(dest, "link.js")); got != "ok" {
			t.Errorf("link.js = %q", got)
		}
	})

	t.Run("escaping", func(t *testing.T) {
		data, err := registrytest.RawTarball(
			[]*tar.Header{{Name: "package/passwd", Typeflag: tar.TypeSymlink, Linkname: "../../../etc/passwd"}},
			nil,
		)
		if err != nil {
			t.Fatal(err)
		}
		err = Extract(bytes.NewReader(data), t.TempDir())
		if !errors.Is(err, errors.ErrCodeExtract) {
			t.Errorf("Extract() error = %v, want EXTRACT_ERROR", err)
		}
	})
}

func TestExtractSkipsOtherTypes(t *testing.T) {
	data, err := registrytest.RawTarball(
		[]*tar.Header{
			{Name: "package/fifo", Typeflag: tar.TypeFifo},
			{Name: "package/a.txt", Typeflag: tar.TypeReg, Mode: 0o644},
		},
		[]string{"", "a"},
	)
	if err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := Extract(bytes.NewReader(data), dest); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(filepath.Join(dest, "fifo")); !os.IsNotExist(err) {
		t.Error("fifo should be skipped")
	}
	if got := readFile(t, filepath.Join(dest, "a.txt")); got != "a" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestExtractNotGzip(t *testing.T) {
	err := Extract(strings.NewReader("definitely not gzip"), t.TempDir())
	if !errors.Is(err, errors.ErrCodeExtract) {
		t.Errorf("Extract() error = %v, want EXTRACT_ERROR", err)
	}
}

func TestStripRoot(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"package/index.js", "index.js", true},
		{"package/lib/a.js", "lib/a.js", true},
		{"./package/index.js", "index.js", true},
		{"package/", "", false},
		{"package", "", false},
		{"package/dir/", "dir", true},
	}
	for _, tt := range tests {
		got, ok := stripRoot(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("stripRoot(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFetchAndExtract(t *testing.T) {
	data := mustTarball(t, registrytest.File{Name: "index.js", Body: "1"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "node_modules", "@scope", "name")
	var progress bytes.Buffer
	f := &Fetcher{Client: server.Client(), Progress: &progress}

	if err := f.FetchAndExtract(context.Background(), server.URL+"/pkg.tgz", dest); err != nil {
		t.Fatalf("FetchAndExtract() error: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "index.js")); got != "1" {
		t.Errorf("index.js = %q", got)
	}
	if progress.Len() == 0 {
		t.Error("expected progress output")
	}
}

func TestFetchAndExtractStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "pkg")
	err := (&Fetcher{}).FetchAndExtract(context.Background(), server.URL+"/pkg.tgz", dest)
	if !errors.Is(err, errors.ErrCodeDownload) {
		t.Fatalf("error = %v, want DOWNLOAD_ERROR", err)
	}
	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		t.Error("destination should exist even when the download fails")
	}
}

func TestFetchAndExtractTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := (&Fetcher{}).FetchAndExtract(context.Background(), url+"/pkg.tgz", t.TempDir())
	if !errors.Is(err, errors.ErrCodeNetwork) {
		t.Errorf("error = %v, want NETWORK_ERROR", err)
	}
}
