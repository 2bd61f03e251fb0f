// Package files manages the temporary upload area.
//
// Uploaded spreadsheets land here under a generated stored name; /process and
// /check-file address them by that name until the sweeper removes them. The
// package deals only in bare filenames: callers never see or supply paths, so
// a request cannot reach outside the area.
package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrBadName marks a filename with path separators, dot prefixes or other
// shapes the area never generates.
var ErrBadName = errors.New("invalid file name")

// Info describes one stored upload for the /check-file response.
type Info struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Age      int64  `json:"age"` // seconds since the file was stored
}

// Dir is a temporary upload area rooted at a single directory.
type Dir struct {
	root string

	mu    sync.Mutex
	inUse map[string]int // stored name -> active job count
}

// New creates the area's directory if needed and returns a handle to it.
func New(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", root, err)
	}
	return &Dir{root: root, inUse: make(map[string]int)}, nil
}

// Root returns the area's directory path.
func (d *Dir) Root() string {
	return d.root
}

// Save streams r into a new file and returns its stored name. The name keeps
// the upload's extension so decoders can pick a format later.
func (d *Dir) Save(r io.Reader, originalName string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		name := storedName(originalName, attempt)
		f, err := os.OpenFile(filepath.Join(d.root, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create temp file: %w", err)
		}

		_, err = io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(filepath.Join(d.root, name))
			return "", fmt.Errorf("write temp file: %w", err)
		}
		return name, nil
	}
	return "", fmt.Errorf("save %s: could not allocate a stored name", originalName)
}

// Open returns the stored file for reading. A swept or never-stored name
// yields an error matching fs.ErrNotExist.
func (d *Dir) Open(name string) (*os.File, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Stat reports size and age for a stored name.
func (d *Dir) Stat(name string) (Info, error) {
	p, err := d.path(name)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Filename: name,
		Size:     fi.Size(),
		Age:      int64(time.Since(fi.ModTime()).Seconds()),
	}, nil
}

// Remove deletes a stored file.
func (d *Dir) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// MarkInUse shields name from the sweeper while a job reads it. Calls nest;
// each needs a matching Release.
func (d *Dir) MarkInUse(name string) {
	d.mu.Lock()
	d.inUse[name]++
	d.mu.Unlock()
}

// Release undoes one MarkInUse.
func (d *Dir) Release(name string) {
	d.mu.Lock()
	if d.inUse[name] > 1 {
		d.inUse[name]--
	} else {
		delete(d.inUse, name)
	}
	d.mu.Unlock()
}

// InUse reports whether any job currently holds name.
func (d *Dir) InUse(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUse[name] > 0
}

// Sweep removes files older than ttl, skipping any currently in use. It
// returns the number of files removed.
func (d *Dir) Sweep(ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || d.InUse(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(d.root, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// path validates name and resolves it inside the area. Only bare filenames
// the area could have generated pass.
func (d *Dir) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(d.root, name), nil
}

// storedName builds the on-disk name for an upload: a kebab-cased stem, a
// clock-derived suffix and the original extension. attempt perturbs the
// suffix when a previous pick collided.
func storedName(originalName string, attempt int) string {
	base := filepath.Base(originalName)
	ext := strings.ToLower(filepath.Ext(base))
	stem := kebab(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "upload"
	}
	suffix := (time.Now().Unix() + int64(attempt)) % 1_000_000
	return fmt.Sprintf("%s--%d%s", stem, suffix, ext)
}

// kebab lowercases s and folds every run of non-alphanumerics into a single
// hyphen.
func kebab(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
