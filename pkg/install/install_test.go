package install

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/minpm/minpm/internal/registrytest"
	"github.com/minpm/minpm/pkg/archive"
	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/manifest"
	"github.com/minpm/minpm/pkg/observability"
	"github.com/minpm/minpm/pkg/registry"
)

type fixture struct {
	reg        *registrytest.Registry
	inst       *Installer
	project    string
	globalRoot string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registrytest.New(t)
	project := t.TempDir()
	globalRoot := t.TempDir()

	client := registry.NewClient(reg.URL(), registry.WithHTTPClient(reg.Client()))
	fetcher := &archive.Fetcher{Client: reg.Client()}
	inst := NewInstaller(client, fetcher, manifest.NewStore(project), globalRoot, nil)

	return &fixture{reg: reg, inst: inst, project: project, globalRoot: globalRoot}
}

func (f *fixture) local() *Context  { return NewContext(f.project, false) }
func (f *fixture) global() *Context { return NewContext(f.project, true) }

func installedVersion(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(PackageDir(root, name), "package.json"))
	if err != nil {
		t.Fatalf("%s not installed under %s: %v", name, root, err)
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		t.Fatal(err)
	}
	return pkg.Version
}

func mustParse(t *testing.T, args ...string) []Request {
	t.Helper()
	reqs, err := ParseRequests(args)
	if err != nil {
		t.Fatal(err)
	}
	return reqs
}

func TestInstallFallbackScenario(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "left", Version: "1.0.0", Dependencies: []string{"right", "^1.0.0"}})
	f.reg.Publish(registrytest.Package{Name: "right", Version: "2.0.0"})

	n, err := f.inst.Install(context.Background(), mustParse(t, "left@latest"), f.local())
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Install() = %d, want 2", n)
	}

	if v := installedVersion(t, f.project, "left"); v != "1.0.0" {
		t.Errorf("left version = %s, want 1.0.0", v)
	}
	if v := installedVersion(t, f.project, "right"); v != "2.0.0" {
		t.Errorf("right version = %s, want 2.0.0 (latest fallback)", v)
	}

	// Every extracted package is recorded, transitive ones included.
	m := f.inst.Manifest.Read()
	if got, want := m.Dependencies.Keys(), []string{"left", "right"}; !reflect.DeepEqual(got, want) {
		t.Errorf("manifest dependencies = %v, want %v", got, want)
	}
	if v, _ := m.Dependencies.Get("left"); v != "^1.0.0" {
		t.Errorf("dependencies[left] = %q, want ^1.0.0", v)
	}
	if v, _ := m.Dependencies.Get("right"); v != "^2.0.0" {
		t.Errorf("dependencies[right] = %q, want ^2.0.0", v)
	}
	if m.Name != manifest.DefaultName {
		t.Errorf("manifest name = %q, want default skeleton", m.Name)
	}
}

func TestInstallWarnsOnUnsupportedRange(t *testing.T) {
	tests := []struct {
		name     string
		dep      string
		wantWarn bool
	}{
		{name: "caret range", dep: "^1.0.0", wantWarn: true},
		{name: "exact version", dep: "2.0.0", wantWarn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var buf bytes.Buffer
			f.inst.Logger = log.NewWithOptions(&buf, log.Options{Level: log.WarnLevel})
			f.reg.Publish(registrytest.Package{Name: "left", Version: "1.0.0", Dependencies: []string{"right", tt.dep}})
			f.reg.Publish(registrytest.Package{Name: "right", Version: "2.0.0"})

			if _, err := f.inst.Install(context.Background(), mustParse(t, "left"), f.local()); err != nil {
				t.Fatalf("Install() error: %v", err)
			}
			got := strings.Contains(buf.String(), "version range not supported")
			if got != tt.wantWarn {
				t.Errorf("warned = %v, want %v; log:\n%s", got, tt.wantWarn, buf.String())
			}
			if tt.wantWarn && !strings.Contains(buf.String(), "requested=^1.0.0") {
				t.Errorf("warning lacks requested range:\n%s", buf.String())
			}
		})
	}
}

func TestInstallDedupByName(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "d", Version: "1.0.0"})
	f.reg.Publish(registrytest.Package{Name: "d", Version: "2.0.0"})
	f.reg.Publish(registrytest.Package{Name: "b", Version: "1.0.0", Dependencies: []string{"d", "1.0.0"}})
	f.reg.Publish(registrytest.Package{Name: "c", Version: "1.0.0", Dependencies: []string{"d", "2.0.0"}})
	f.reg.Publish(registrytest.Package{Name: "a", Version: "1.0.0", Dependencies: []string{"b", "*", "c", "*"}})

	ictx := f.local()
	n, err := f.inst.Install(context.Background(), mustParse(t, "a"), ictx)
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if n != 4 {
		t.Errorf("Install() = %d, want 4", n)
	}

	if hits := f.reg.TarballHits("d"); hits != 1 {
		t.Errorf("d tarball hits = %d, want 1", hits)
	}
	if hits := f.reg.MetadataHits("d"); hits != 1 {
		t.Errorf("d metadata hits = %d, want 1", hits)
	}
	// First path to reach d wins.
	if v := installedVersion(t, f.project, "d"); v != "1.0.0" {
		t.Errorf("d version = %s, want 1.0.0", v)
	}
	if got, want := ictx.Packages(), []string{"a", "b", "d", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("visit order = %v, want %v", got, want)
	}
}

func TestInstallRepeatedRequest(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "x", Version: "1.0.0"})

	ictx := f.local()
	n, err := f.inst.Install(context.Background(), mustParse(t, "x", "x@1.0.0"), ictx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || f.reg.TarballHits("x") != 1 {
		t.Errorf("n = %d, hits = %d; want 1, 1", n, f.reg.TarballHits("x"))
	}

	// Same context again: nothing new.
	n, err = f.inst.Install(context.Background(), mustParse(t, "x"), ictx)
	if err != nil || n != 0 {
		t.Errorf("second Install() = %d, %v; want 0, nil", n, err)
	}
}

func TestInstallScopedPath(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "@scope/name", Version: "1.2.3"})

	if _, err := f.inst.Install(context.Background(), mustParse(t, "@scope/name@1.2.3"), f.local()); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	dir := filepath.Join(f.project, "node_modules", "@scope", "name")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected nested directory %s", dir)
	}
	if v := installedVersion(t, f.project, "@scope/name"); v != "1.2.3" {
		t.Errorf("version = %s", v)
	}
	if v, _ := f.inst.Manifest.Read().Dependencies.Get("@scope/name"); v != "^1.2.3" {
		t.Errorf("dependencies[@scope/name] = %q", v)
	}
}

func TestInstallAlternateDirSkipsManifest(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "x", Version: "1.0.0"})

	other := t.TempDir()
	if _, err := f.inst.Install(context.Background(), mustParse(t, "x"), NewContext(other, false)); err != nil {
		t.Fatal(err)
	}
	installedVersion(t, other, "x")
	if f.inst.Manifest.Exists() {
		t.Error("manifest written for install outside the project root")
	}
}

func TestInstallGlobalShims(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{
		Name:    "tool",
		Version: "1.0.0",
		Bin:     "cli.js",
		Files:   map[string]string{"cli.js": "console.log('hi')"},
	})

	n, err := f.inst.Install(context.Background(), mustParse(t, "tool"), f.global())
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Install() = %d, want 1", n)
	}

	installedVersion(t, f.globalRoot, "tool")
	if _, err := os.Stat(filepath.Join(f.project, "node_modules")); !os.IsNotExist(err) {
		t.Error("global install wrote into the project directory")
	}
	if f.inst.Manifest.Exists() {
		t.Error("global install wrote the manifest")
	}

	shimPath := filepath.Join(f.globalRoot, "bin", "tool")
	data, err := os.ReadFile(shimPath)
	if err != nil {
		t.Fatalf("shim missing: %v", err)
	}
	target := filepath.Join(f.globalRoot, "node_modules", "tool", "cli.js")
	if !strings.Contains(string(data), strings.ReplaceAll(target, `\`, `\\`)) {
		t.Errorf("shim %q does not reference %q", data, target)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(shimPath)
		if info.Mode().Perm()&0o111 == 0 {
			t.Errorf("shim mode = %o, want executable", info.Mode().Perm())
		}
	}
}

func TestInstallGlobalShimFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{
		Name:    "broken",
		Version: "1.0.0",
		Files:   map[string]string{"package.json": "{not json"},
	})

	n, err := f.inst.Install(context.Background(), mustParse(t, "broken"), f.global())
	if err != nil {
		t.Fatalf("Install() error = %v, want shim failure downgraded", err)
	}
	if n != 1 {
		t.Errorf("Install() = %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(f.globalRoot, "bin")); !os.IsNotExist(err) {
		t.Error("no shims expected")
	}
}

func TestInstallAbortsOnError(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "a", Version: "1.0.0", Dependencies: []string{"missing", "1.0.0", "later", "1.0.0"}})
	f.reg.Publish(registrytest.Package{Name: "later", Version: "1.0.0"})
	f.reg.Publish(registrytest.Package{Name: "z", Version: "1.0.0"})

	_, err := f.inst.Install(context.Background(), mustParse(t, "a", "z"), f.local())
	if !errors.Is(err, errors.ErrCodeNetwork) {
		t.Fatalf("Install() error = %v, want NETWORK_ERROR", err)
	}

	// a finished before the failure and stays, along with its manifest entry.
	installedVersion(t, f.project, "a")
	if _, ok := f.inst.Manifest.Read().Dependencies.Get("a"); !ok {
		t.Error("manifest entry for a should survive the failed run")
	}
	for _, name := range []string{"later", "z"} {
		if hits := f.reg.MetadataHits(name); hits != 0 {
			t.Errorf("%s metadata hits = %d, want 0 after abort", name, hits)
		}
	}
}

func TestInstallErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(reg *registrytest.Registry)
		want  errors.Code
	}{
		{
			name: "download failure",
			setup: func(reg *registrytest.Registry) {
				reg.Publish(registrytest.Package{Name: "p", Version: "1.0.0"})
				reg.FailTarballs("p", http.StatusNotFound)
			},
			want: errors.ErrCodeDownload,
		},
		{
			name: "bad metadata",
			setup: func(reg *registrytest.Registry) {
				reg.SetRawMetadata("p", `{"name":"p"}`)
			},
			want: errors.ErrCodeMetadataParse,
		},
		{
			name: "inconsistent latest",
			setup: func(reg *registrytest.Registry) {
				reg.Publish(registrytest.Package{Name: "p", Version: "1.0.0"})
				reg.SetLatest("p", "3.0.0")
			},
			want: errors.ErrCodeVersionNotFound,
		},
		{
			name: "server error",
			setup: func(reg *registrytest.Registry) {
				reg.FailMetadata("p", http.StatusInternalServerError)
			},
			want: errors.ErrCodeNetwork,
		},
		{
			name: "unsafe dependency name",
			setup: func(reg *registrytest.Registry) {
				reg.Publish(registrytest.Package{Name: "p", Version: "1.0.0", Dependencies: []string{"../../etc", "1.0.0"}})
			},
			want: errors.ErrCodeInvalidPackage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.reg)

			_, err := f.inst.Install(context.Background(), mustParse(t, "p"), f.local())
			if !errors.Is(err, tt.want) {
				t.Errorf("Install() error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestInstallFromManifest(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "left", Version: "1.0.0"})
	f.reg.Publish(registrytest.Package{Name: "left", Version: "1.5.0"})
	f.reg.Publish(registrytest.Package{Name: "right", Version: "3.0.0"})

	m := manifest.Default()
	m.Dependencies.Set("left", "^1.0.0")
	m.Dependencies.Set("right", "~2.0.0")
	if err := f.inst.Manifest.Write(m); err != nil {
		t.Fatal(err)
	}

	n, err := f.inst.Install(context.Background(), nil, f.local())
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Install() = %d, want 2", n)
	}

	// ^1.0.0 becomes the exact 1.0.0, which exists; ~2.0.0 becomes 2.0.0,
	// which does not, and falls back to latest.
	if v := installedVersion(t, f.project, "left"); v != "1.0.0" {
		t.Errorf("left = %s, want 1.0.0", v)
	}
	if v := installedVersion(t, f.project, "right"); v != "3.0.0" {
		t.Errorf("right = %s, want 3.0.0", v)
	}
	if v, _ := f.inst.Manifest.Read().Dependencies.Get("right"); v != "^3.0.0" {
		t.Errorf("dependencies[right] = %q, want ^3.0.0", v)
	}
}

func TestInstallNoRequestsNoManifest(t *testing.T) {
	f := newFixture(t)
	n, err := f.inst.Install(context.Background(), nil, f.local())
	if err != nil || n != 0 {
		t.Errorf("Install() = %d, %v; want 0, nil", n, err)
	}
}

func TestInstallCancelled(t *testing.T) {
	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "x", Version: "1.0.0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.inst.Install(ctx, mustParse(t, "x"), f.local()); err != context.Canceled {
		t.Errorf("Install() error = %v, want context.Canceled", err)
	}
	if f.reg.MetadataHits("x") != 0 {
		t.Error("no request expected after cancellation")
	}
}

type recordingHooks struct {
	mu        sync.Mutex
	started   []string
	completed []string
	failed    []string
	removed   []string
}

func (h *recordingHooks) OnPackageStart(_ context.Context, name, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, name)
}

func (h *recordingHooks) OnPackageComplete(_ context.Context, name, version string, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.failed = append(h.failed, name)
		return
	}
	h.completed = append(h.completed, name+"@"+version)
}

func (h *recordingHooks) OnPackageRemoved(_ context.Context, name string, _ bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, name)
}

func TestInstallHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetInstallHooks(hooks)
	t.Cleanup(observability.Reset)

	f := newFixture(t)
	f.reg.Publish(registrytest.Package{Name: "a", Version: "1.0.0", Dependencies: []string{"gone", "1.0.0"}})

	if _, err := f.inst.Install(context.Background(), mustParse(t, "a"), f.local()); err == nil {
		t.Fatal("expected error for missing dependency")
	}
	if _, err := f.inst.Uninstall(context.Background(), []string{"a"}, false); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(hooks.started, []string{"a", "gone"}) {
		t.Errorf("started = %v", hooks.started)
	}
	if !reflect.DeepEqual(hooks.completed, []string{"a@1.0.0"}) {
		t.Errorf("completed = %v", hooks.completed)
	}
	if !reflect.DeepEqual(hooks.failed, []string{"gone"}) {
		t.Errorf("failed = %v", hooks.failed)
	}
	if !reflect.DeepEqual(hooks.removed, []string{"a"}) {
		t.Errorf("removed = %v", hooks.removed)
	}
}
