// Package library resolves ambient frame containers stored under a single
// root directory, keyed by the media item id they were extracted from.
package library

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/halolight/ambiplay/internal/fsutil"
	"github.com/halolight/ambiplay/internal/security"
)

// Extension is the container suffix every library entry carries.
const Extension = ".amb"

// ErrNotFound reports that no container exists for the requested item id.
var ErrNotFound = errors.New("library: item not found")

// Library maps media item ids to container files under a root directory.
// Ids are reduced to safe filenames before touching the filesystem and
// resolved paths are checked against the root, so a hostile id or a symlink
// planted inside the root cannot reach files outside it.
type Library struct {
	root string
	fs   fsutil.FileSystem
}

// New returns a library over root. A nil filesystem selects the real one.
func New(root string, filesystem fsutil.FileSystem) *Library {
	if filesystem == nil {
		filesystem = fsutil.OSFileSystem{}
	}
	return &Library{root: filepath.Clean(root), fs: filesystem}
}

// Root returns the library root directory.
func (l *Library) Root() string {
	return l.root
}

// Resolve returns the container path for a media item id. The id is
// sanitized into a flat filename, joined under the root, and the result is
// verified to stay inside the root with symlinks resolved.
func (l *Library) Resolve(itemID string) (string, error) {
	name := security.SanitizeFilename(itemID)
	path := filepath.Join(l.root, name+Extension)

	if err := security.ValidatePathWithinDirectory(path, l.root); err != nil {
		return "", fmt.Errorf("library: rejected item %q: %w", itemID, err)
	}

	info, err := l.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s resolves to a directory", ErrNotFound, itemID)
	}

	return path, nil
}

// Entry describes one container in the library.
type Entry struct {
	ItemID  string    `json:"item_id"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// List returns every container directly under the root, sorted by item id.
// Subdirectories and files without the container suffix are skipped.
func (l *Library) List() ([]Entry, error) {
	dirents, err := l.fs.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("library: read root: %w", err)
	}

	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), Extension) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			ItemID:  strings.TrimSuffix(de.Name(), Extension),
			Path:    filepath.Join(l.root, de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// Directory order is by filename; trimming the suffix can reorder ids
	// when one id is a prefix of another.
	sort.Slice(entries, func(i, j int) bool { return entries[i].ItemID < entries[j].ItemID })
	return entries, nil
}
