// Package registrytest runs an in-process npm-compatible registry for
// tests.
//
//	reg := registrytest.New(t)
//	reg.Publish(registrytest.Package{Name: "left", Version: "1.0.0",
//	    Dependencies: []string{"right", "^1.0.0"}})
//	client := registry.NewClient(reg.URL())
//
// Metadata is served at /<name> (scoped names keep their slash) and
// tarballs at /-/tarballs/<id>. Every request is counted per package so
// tests can assert how often a package was fetched.
package registrytest

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	"github.com/minpm/minpm/pkg/manifest"
)

// Package is one published version.
type Package struct {
	Name         string
	Version      string
	Dependencies []string // alternating name, range; declaration order kept
	Main         string
	Bin          any // string or map[string]string
	Files        map[string]string
}

// File is a tarball entry, named relative to the wrapper directory.
type File struct {
	Name string
	Body string
	Mode int64
}

// Registry is a fake registry backed by an httptest server.
type Registry struct {
	server *httptest.Server

	mu       sync.Mutex
	docs     map[string]*doc
	raw      map[string]string
	fail     map[string]int
	tarballs []tarball
	metaHits map[string]int
	tarHits  map[string]int
}

type doc struct {
	latest   string
	versions map[string]versionEntry
}

type versionEntry struct {
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Dist         distEntry           `json:"dist"`
	Dependencies manifest.OrderedMap `json:"dependencies"`
}

type distEntry struct {
	Tarball string `json:"tarball"`
}

type tarball struct {
	name   string
	data   []byte
	status int
}

// New starts a registry that is closed when the test ends.
func New(t testing.TB) *Registry {
	t.Helper()
	reg := &Registry{
		docs:     make(map[string]*doc),
		raw:      make(map[string]string),
		fail:     make(map[string]int),
		metaHits: make(map[string]int),
		tarHits:  make(map[string]int),
	}

	r := chi.NewRouter()
	r.Get("/-/tarballs/{id}", reg.serveTarball)
	r.Get("/*", reg.serveMetadata)

	reg.server = httptest.NewServer(r)
	t.Cleanup(reg.server.Close)
	return reg
}

// URL returns the registry base URL with a trailing slash.
func (reg *Registry) URL() string { return reg.server.URL + "/" }

// Client returns an HTTP client for the server.
func (reg *Registry) Client() *http.Client { return reg.server.Client() }

// Publish adds a version and moves the latest dist-tag to it. A
// package.json is generated from the Package fields unless Files provides
// one. It returns the tarball URL.
func (reg *Registry) Publish(p Package) string {
	files := []File{}
	if _, ok := p.Files[manifest.FileName]; !ok {
		files = append(files, File{Name: manifest.FileName, Body: packageJSON(p)})
	}
	names := make([]string, 0, len(p.Files))
	for name := range p.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		files = append(files, File{Name: name, Body: p.Files[name]})
	}

	data, err := Tarball(files...)
	if err != nil {
		panic(err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := len(reg.tarballs)
	reg.tarballs = append(reg.tarballs, tarball{name: p.Name, data: data})
	url := fmt.Sprintf("%s/-/tarballs/%d", reg.server.URL, id)

	d, ok := reg.docs[p.Name]
	if !ok {
		d = &doc{versions: make(map[string]versionEntry)}
		reg.docs[p.Name] = d
	}
	d.versions[p.Version] = versionEntry{
		Name:         p.Name,
		Version:      p.Version,
		Dist:         distEntry{Tarball: url},
		Dependencies: *manifest.NewOrderedMap(p.Dependencies...),
	}
	d.latest = p.Version
	return url
}

// SetLatest points the latest dist-tag of name at version, which need not
// exist.
func (reg *Registry) SetLatest(name, version string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if d, ok := reg.docs[name]; ok {
		d.latest = version
	}
}

// SetRawMetadata serves body verbatim as the metadata of name.
func (reg *Registry) SetRawMetadata(name, body string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.raw[name] = body
}

// FailMetadata makes metadata requests for name answer with status.
func (reg *Registry) FailMetadata(name string, status int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.fail[name] = status
}

// FailTarballs makes every tarball request for name answer with status.
func (reg *Registry) FailTarballs(name string, status int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for i := range reg.tarballs {
		if reg.tarballs[i].name == name {
			reg.tarballs[i].status = status
		}
	}
}

// MetadataHits returns how many metadata requests name received.
func (reg *Registry) MetadataHits(name string) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.metaHits[name]
}

// TarballHits returns how many tarball downloads name received.
func (reg *Registry) TarballHits(name string) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.tarHits[name]
}

func (reg *Registry) serveMetadata(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	reg.mu.Lock()
	reg.metaHits[name]++
	status := reg.fail[name]
	raw, hasRaw := reg.raw[name]
	d, ok := reg.docs[name]
	var body []byte
	if ok && !hasRaw && status == 0 {
		body, _ = json.Marshal(map[string]any{
			"name":      name,
			"dist-tags": map[string]string{"latest": d.latest},
			"versions":  d.versions,
		})
	}
	reg.mu.Unlock()

	switch {
	case status != 0:
		http.Error(w, http.StatusText(status), status)
	case hasRaw:
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(raw))
	case !ok:
		http.Error(w, `{"error":"Not found"}`, http.StatusNotFound)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func (reg *Registry) serveTarball(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))

	reg.mu.Lock()
	if err != nil || id < 0 || id >= len(reg.tarballs) {
		reg.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	tb := reg.tarballs[id]
	reg.tarHits[tb.name]++
	reg.mu.Unlock()

	if tb.status != 0 {
		http.Error(w, http.StatusText(tb.status), tb.status)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(tb.data)))
	w.Write(tb.data)
}

func packageJSON(p Package) string {
	m := map[string]any{"name": p.Name, "version": p.Version}
	if p.Main != "" {
		m["main"] = p.Main
	}
	if p.Bin != nil {
		m["bin"] = p.Bin
	}
	if len(p.Dependencies) > 0 {
		m["dependencies"] = manifest.NewOrderedMap(p.Dependencies...)
	}
	data, _ := json.MarshalIndent(m, "", "  ")
	return string(data)
}

// Tarball builds a gzip-compressed tar with every file under "package/",
// the way registries pack published versions. A zero Mode means 0644.
func Tarball(files ...File) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{Name: "package/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		return nil, err
	}
	for _, f := range files {
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:     "package/" + f.Name,
			Typeflag: tar.TypeReg,
			Mode:     mode,
			Size:     int64(len(f.Body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(f.Body)); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RawTarball builds a gzip-compressed tar from headers and bodies exactly
// as given, for malformed-archive tests. bodies[i] belongs to headers[i].
func RawTarball(headers []*tar.Header, bodies []string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for i, hdr := range headers {
		if hdr.Typeflag == tar.TypeReg && hdr.Size == 0 && i < len(bodies) {
			hdr.Size = int64(len(bodies[i]))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if i < len(bodies) && bodies[i] != "" {
			if _, err := tw.Write([]byte(bodies[i])); err != nil {
				return nil, err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
