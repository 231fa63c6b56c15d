// Package shim generates launcher scripts for the executables a package
// declares, and locates a package's entry point.
//
// A package's "bin" field is either a single path, shimmed under the
// package's own name, or an object mapping shim names to paths. [Bin]
// holds either shape and [Package.Bins] normalizes both into one ordered
// name-to-path map.
package shim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/manifest"
)

// DefaultInterpreter runs the scripts that shims point at.
const DefaultInterpreter = "node"

// Bin is the "bin" field of a package manifest.
type Bin struct {
	single string
	named  manifest.OrderedMap
}

// UnmarshalJSON accepts a string or an object of strings. Other shapes
// decode to an empty Bin.
func (b *Bin) UnmarshalJSON(data []byte) error {
	*b = Bin{}
	data = bytes.TrimSpace(data)
	switch {
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &b.single)
	case len(data) > 0 && data[0] == '{':
		return b.named.UnmarshalJSON(data)
	}
	return nil
}

// IsZero reports whether no executable is declared.
func (b Bin) IsZero() bool { return b.single == "" && b.named.Len() == 0 }

// Package is the subset of an installed package's manifest the shim and
// launch steps read.
type Package struct {
	Name string `json:"name"`
	Main string `json:"main"`
	Bin  Bin    `json:"bin"`
}

// ReadPackage reads <dir>/package.json.
func ReadPackage(dir string) (*Package, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read package manifest in %s", dir)
	}
	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse package manifest in %s", dir)
	}
	return &pkg, nil
}

// Bins returns the declared executables as shim name to relative path, in
// declaration order. A single-path bin is named after the package, without
// its scope.
func (p *Package) Bins() *manifest.OrderedMap {
	if p.Bin.single != "" {
		return manifest.NewOrderedMap(binName(p.Name), p.Bin.single)
	}
	out := &manifest.OrderedMap{}
	p.Bin.named.Each(func(k, v string) { out.Set(k, v) })
	return out
}

func binName(pkgName string) string {
	if strings.HasPrefix(pkgName, "@") {
		return path.Base(pkgName)
	}
	return pkgName
}

// Entry returns the absolute script to run for the package installed at
// dir: the single bin, else the first named bin, else main.
func Entry(p *Package, dir string) (string, error) {
	rel := ""
	switch {
	case p.Bin.single != "":
		rel = p.Bin.single
	case p.Bin.named.Len() > 0:
		rel, _ = p.Bin.named.Get(p.Bin.named.Keys()[0])
	case p.Main != "":
		rel = p.Main
	default:
		return "", errors.New(errors.ErrCodeEntryPointNotFound, "%s declares neither bin nor main", p.Name)
	}
	return filepath.Abs(filepath.Join(dir, filepath.FromSlash(rel)))
}

// Create writes a launcher into binDir for every executable p declares and
// returns the paths written. It is a no-op when p declares none.
//
// Each launcher is a script for interpreter that requires the absolute path
// of the executable under installedPath. Shims are chmod 0755 explicitly
// since the create mode is subject to umask. On Windows a .cmd wrapper is
// written next to each shim.
func Create(p *Package, installedPath, binDir, interpreter string) ([]string, error) {
	bins := p.Bins()
	if bins.Len() == 0 {
		return nil, nil
	}
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create %s", binDir)
	}

	var written []string
	for _, name := range bins.Keys() {
		rel, _ := bins.Get(name)
		if err := validate(name, rel); err != nil {
			return written, err
		}
		target, err := filepath.Abs(filepath.Join(installedPath, filepath.FromSlash(strings.TrimPrefix(rel, "./"))))
		if err != nil {
			return written, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve bin %s", name)
		}

		shimPath := filepath.Join(binDir, name)
		if err := writeExecutable(shimPath, script(interpreter, target)); err != nil {
			return written, err
		}
		written = append(written, shimPath)

		if runtime.GOOS == "windows" {
			cmdPath := shimPath + ".cmd"
			if err := writeExecutable(cmdPath, cmdWrapper(interpreter, shimPath)); err != nil {
				return written, err
			}
			written = append(written, cmdPath)
		}
	}
	return written, nil
}

func validate(name, rel string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.New(errors.ErrCodeInvalidPath, "invalid bin name %q", name)
	}
	if err := errors.ValidatePath(strings.TrimPrefix(rel, "./")); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "bin %s", name)
	}
	return nil
}

func script(interpreter, target string) string {
	escaped := strings.ReplaceAll(target, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf("#!/usr/bin/env %s\nrequire(\"%s\");\n", interpreter, escaped)
}

func cmdWrapper(interpreter, shimPath string) string {
	return fmt.Sprintf("@ECHO off\r\n%s \"%s\" %%*\r\n", interpreter, shimPath)
}

func writeExecutable(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write shim %s", path)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "chmod shim %s", path)
	}
	return nil
}
