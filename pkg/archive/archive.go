// Package archive downloads package tarballs and unpacks them.
//
// Registry tarballs wrap their content in a single top-level directory
// (conventionally "package/"). [Extract] drops that first path component
// so the content lands directly in the destination directory.
//
// Extraction is not atomic. A failure part way through leaves whatever was
// already written in place.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"

	"github.com/minpm/minpm/pkg/errors"
	"github.com/minpm/minpm/pkg/httputil"
)

// Fetcher streams tarballs over HTTP into a directory.
type Fetcher struct {
	// Client performs the download. Nil selects a client with
	// httputil.DefaultTimeout.
	Client *http.Client

	// Headers are sent with every request.
	Headers map[string]string

	// Progress receives a byte progress bar for each download. Nil
	// disables it.
	Progress io.Writer
}

// FetchAndExtract downloads url and unpacks it into dest, creating dest
// and its parents first.
func (f *Fetcher) FetchAndExtract(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeExtract, err, "create %s", dest)
	}

	client := f.Client
	if client == nil {
		client = httputil.NewClient(0)
	}
	resp, err := httputil.Get(ctx, client, url, f.Headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !httputil.StatusOK(resp.StatusCode) {
		return errors.New(errors.ErrCodeDownload, "download %s: status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.Progress != nil {
		bar := newBar(f.Progress, resp.ContentLength, filepath.Base(url))
		defer bar.Finish()
		body = io.TeeReader(resp.Body, bar)
	}

	if err := Extract(body, dest); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func newBar(w io.Writer, size int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(" "+desc),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
	)
}

// Extract unpacks a gzip-compressed tar stream into dest, stripping the
// first path component of every entry.
//
// Directories, regular files and symlinks are restored; other entry types
// are skipped. Regular files keep their archived permission bits, widened
// to at least 0644. Entries or symlink targets that would land outside
// dest fail with EXTRACT_ERROR.
func Extract(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExtract, err, "open gzip stream")
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExtract, err, "resolve %s", dest)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeExtract, err, "read tar entry")
		}

		rel, ok := stripRoot(hdr.Name)
		if !ok {
			continue
		}
		target, err := within(root, rel)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeExtract, err, "create %s", rel)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()|0o644); err != nil {
				return errors.Wrap(errors.ErrCodeExtract, err, "write %s", rel)
			}
		case tar.TypeSymlink:
			if err := writeSymlink(root, target, hdr.Linkname); err != nil {
				return err
			}
		}
	}
}

// stripRoot removes the wrapper directory from an entry name. It reports
// false for the wrapper itself and for entries with nothing left.
func stripRoot(name string) (string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	_, rest, found := strings.Cut(name, "/")
	if !found {
		return "", false
	}
	rest = strings.Trim(rest, "/")
	return rest, rest != ""
}

func within(root, rel string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", errors.New(errors.ErrCodeExtract, "entry %q escapes destination", rel)
	}
	return target, nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// OpenFile only applies mode to new files and is subject to umask.
	return os.Chmod(path, mode)
}

func writeSymlink(root, target, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}
	if _, err := within(root, relTo(root, resolved)); err != nil {
		return errors.New(errors.ErrCodeExtract, "symlink %s -> %s escapes destination",
			filepath.Base(target), linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeExtract, err, "create parent of %s", target)
	}
	_ = os.Remove(target)
	if err := os.Symlink(linkname, target); err != nil {
		return errors.Wrap(errors.ErrCodeExtract, err, "symlink %s", target)
	}
	return nil
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return fmt.Sprintf("..%c%s", os.PathSeparator, path)
	}
	return filepath.ToSlash(rel)
}
