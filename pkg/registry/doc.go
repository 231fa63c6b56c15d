// Package registry fetches package metadata from an npm-compatible
// registry and picks the version to install.
//
// # Usage
//
//	client := registry.NewClient(registry.DefaultURL)
//	meta, err := client.FetchMetadata(ctx, "express")
//	if err != nil {
//	    return err
//	}
//	res, err := registry.Resolve(meta, "^4.0.0")
//	// res.Version is dist-tags.latest: ranges are not satisfied
//
// # Version Selection
//
// [Resolve] never evaluates ranges. "latest" maps to the latest dist-tag,
// an exact version present in the metadata is used as is, and anything
// else (a missing version, a range, a tag other than latest) silently falls
// back to the latest dist-tag. [Resolution.Degraded] marks the case where
// a semver version or range was replaced that way; the installer reports
// it as a warning.
//
// # Retries
//
// A client makes a single attempt per request unless [WithRetries] is
// set. Transport failures and 5xx responses are the only retryable errors.
package registry
