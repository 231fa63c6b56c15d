package registry

import (
	"github.com/Masterminds/semver/v3"

	"github.com/minpm/minpm/pkg/errors"
)

// LatestTag is the dist-tag used for unqualified and unresolvable requests.
const LatestTag = "latest"

// Resolution is the outcome of [Resolve].
type Resolution struct {
	Version  string
	Record   VersionRecord
	Fallback bool // the token was not an exact version and latest was used
	Degraded bool // the token was a semver version or range that latest replaced
}

// Resolve picks the version to install for token.
//
// "latest" resolves to the latest dist-tag. A token naming a published
// version is used verbatim. Any other token falls back to the latest
// dist-tag without error. VERSION_NOT_FOUND is returned only when the
// latest dist-tag itself points at a version missing from the metadata.
func Resolve(meta *Metadata, token string) (*Resolution, error) {
	res := &Resolution{}

	switch _, exact := meta.Versions[token]; {
	case token == LatestTag:
		res.Version = meta.DistTags[LatestTag]
	case !exact:
		res.Version = meta.DistTags[LatestTag]
		res.Fallback = true
		res.Degraded = isRange(token)
	default:
		res.Version = token
	}

	rec, ok := meta.Versions[res.Version]
	if !ok {
		return nil, errors.New(errors.ErrCodeVersionNotFound,
			"%s: version %q (requested %q) not in registry metadata", meta.Name, res.Version, token)
	}
	res.Record = rec
	return res, nil
}

func isRange(token string) bool {
	if token == "" {
		return false
	}
	_, err := semver.NewConstraint(token)
	return err == nil
}
