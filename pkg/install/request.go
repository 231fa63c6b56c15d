package install

import (
	"strings"

	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/registry"
)

// Request names a package and the version token asked for.
type Request struct {
	Name    string
	Version string
}

// String formats the request as name@version.
func (r Request) String() string { return r.Name + "@" + r.Version }

// ParseRequest parses "name", "name@version", "@scope/name" or
// "@scope/name@version". For scoped names the separator is the second "@".
// A missing or empty version means "latest".
func ParseRequest(s string) (Request, error) {
	s = strings.TrimSpace(s)

	offset := 0
	if strings.HasPrefix(s, "@") {
		offset = 1
	}
	name, version := s, ""
	if i := strings.Index(s[offset:], "@"); i >= 0 {
		name, version = s[:offset+i], s[offset+i+1:]
	}
	if version == "" {
		version = registry.LatestTag
	}

	if err := errors.ValidateNpmPackageName(name); err != nil {
		return Request{}, err
	}
	return Request{Name: name, Version: version}, nil
}

// ParseRequests parses every argument with [ParseRequest], stopping at the
// first invalid one.
func ParseRequests(args []string) ([]Request, error) {
	reqs := make([]Request, 0, len(args))
	for _, arg := range args {
		req, err := ParseRequest(arg)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// stripRange drops one leading "^" or "~" from a recorded manifest range.
func stripRange(v string) string {
	if strings.HasPrefix(v, "^") || strings.HasPrefix(v, "~") {
		return v[1:]
	}
	return v
}
