// Package manifest reads and writes the project manifest (package.json).
//
// # Manifest
//
// [Manifest] models the three fields the installer owns (name, version,
// dependencies) and carries every other top-level field through a
// read/write cycle untouched, in its original position:
//
//	store := manifest.NewStore(".")
//	m := store.Read()                          // never fails
//	m.Dependencies.Set("left-pad", "^1.3.0")
//	err := store.Write(m)
//
// # Failure Model
//
// [Store.Read] substitutes a default skeleton when the file is missing,
// unreadable or invalid. [Store.Write] overwrites the file in place with
// 2-space indented JSON; it does not write to a temporary file first, so a
// crash mid-write can leave a truncated manifest.
//
// # OrderedMap
//
// Dependency maps keep declaration order ([OrderedMap]) because the install
// walk visits dependencies in the order the registry or the user listed
// them.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest file name at the project root.
const FileName = "package.json"

// Default skeleton values used when no manifest can be read.
const (
	DefaultName    = "my-project"
	DefaultVersion = "1.0.0"
)

// Manifest is the project manifest.
type Manifest struct {
	Name         string
	Version      string
	Dependencies OrderedMap

	order []string                   // top-level keys in file order
	extra map[string]json.RawMessage // fields the installer does not own
}

// Default returns the skeleton used when no manifest exists.
func Default() *Manifest {
	return &Manifest{Name: DefaultName, Version: DefaultVersion}
}

// Field returns the raw JSON of a top-level field the installer does not
// model, such as "scripts".
func (m *Manifest) Field(key string) (json.RawMessage, bool) {
	raw, ok := m.extra[key]
	return raw, ok
}

// UnmarshalJSON decodes a manifest, remembering field order and keeping
// unknown fields verbatim.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	*m = Manifest{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("manifest must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if _, seen := m.extra[key]; !seen && !m.has(key) {
			m.order = append(m.order, key)
		}

		switch key {
		case "name":
			if err := json.Unmarshal(raw, &m.Name); err != nil {
				return fmt.Errorf("name: %w", err)
			}
		case "version":
			if err := json.Unmarshal(raw, &m.Version); err != nil {
				return fmt.Errorf("version: %w", err)
			}
		case "dependencies":
			if err := m.Dependencies.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("dependencies: %w", err)
			}
		default:
			if m.extra == nil {
				m.extra = make(map[string]json.RawMessage)
			}
			m.extra[key] = raw
		}
	}

	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the manifest with fields in their original order.
// name, version and dependencies are always present; missing ones are
// appended in that order.
func (m Manifest) MarshalJSON() ([]byte, error) {
	keys := append([]string(nil), m.order...)
	for _, k := range []string{"name", "version", "dependencies"} {
		if !m.has(k) {
			keys = append(keys, k)
		}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')

		var (
			val []byte
			err error
		)
		switch k {
		case "name":
			val, err = json.Marshal(m.Name)
		case "version":
			val, err = json.Marshal(m.Version)
		case "dependencies":
			val, err = m.Dependencies.MarshalJSON()
		default:
			val = m.extra[k]
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Manifest) has(key string) bool {
	for _, k := range m.order {
		if k == key {
			return true
		}
	}
	return false
}

// Store reads and writes the manifest of one project directory.
type Store struct {
	dir string
}

// NewStore returns a Store for the project rooted at dir. Relative paths
// are made absolute so the store can be compared with install targets.
func NewStore(dir string) *Store {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Store{dir: dir}
}

// Dir returns the absolute project directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the manifest file path.
func (s *Store) Path() string { return filepath.Join(s.dir, FileName) }

// Exists reports whether the manifest file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Read loads the manifest. It never fails: a missing, unreadable or
// malformed file yields [Default].
func (s *Store) Read() *Manifest {
	m, err := Load(s.Path())
	if err != nil {
		return Default()
	}
	return m
}

// Write serializes m as 2-space indented JSON, overwriting the file.
func (s *Store) Write(m *Manifest) error {
	return Save(s.Path(), m)
}

// Load reads and decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save encodes m as 2-space indented JSON and writes it to path.
func Save(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
