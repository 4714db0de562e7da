// Package blob stores note attachments on disk. Entities only carry an
// attachment descriptor; the bytes live here under
// <user>/<unixnano>_<name>.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/peterbourgon/diskv/v3"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// ErrInvalidPath is returned for paths that do not name a blob.
var ErrInvalidPath = errors.New("invalid blob path")

// Store is a diskv-backed attachment store.
type Store struct {
	d     *diskv.Diskv
	clock types.Clock
}

// New opens a store rooted at dir. A nil clock uses the wall clock.
func New(dir string, clock types.Clock) *Store {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Store{
		d: diskv.New(diskv.Options{
			BasePath:          dir,
			AdvancedTransform: keyToPathTransform,
			InverseTransform:  pathToKeyTransform,
			CacheSizeMax:      0,
		}),
		clock: clock,
	}
}

// Put copies r into the store and returns its descriptor.
func (s *Store) Put(userID, name, mime string, r io.Reader) (*types.Attachment, error) {
	user := sanitize(userID)
	if user == "" {
		return nil, fmt.Errorf("%w: empty user", ErrInvalidPath)
	}
	file := sanitize(name)
	if file == "" {
		file = "file"
	}
	key := fmt.Sprintf("%s/%d_%s", user, s.clock.Now().UnixNano(), file)

	n, err := s.PutAt(key, r)
	if err != nil {
		return nil, err
	}
	return &types.Attachment{Name: name, Mime: mime, Size: n, Path: key}, nil
}

// PutAt copies r to an existing descriptor path, replacing any blob there.
// It returns the number of bytes written. Servers and download caches use it
// to store bytes under the path a replica chose.
func (s *Store) PutAt(path string, r io.Reader) (int64, error) {
	if err := checkPath(path); err != nil {
		return 0, err
	}
	cr := &countingReader{r: r}
	if err := s.d.WriteStream(path, cr, true); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return cr.n, nil
}

// Open returns a reader for the blob at path. The caller closes it.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	rc, err := s.d.ReadStream(path, true)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: blob %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rc, nil
}

// Release removes the blob at path. Releasing a missing blob is not an
// error.
func (s *Store) Release(_ context.Context, path string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if err := s.d.Erase(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("erasing %s: %w", path, err)
	}
	return nil
}

// Has reports whether a blob exists at path.
func (s *Store) Has(path string) bool {
	return checkPath(path) == nil && s.d.Has(path)
}

func checkPath(path string) error {
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" ||
		sanitize(parts[0]) != parts[0] || sanitize(parts[1]) != parts[1] {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

func keyToPathTransform(key string) *diskv.PathKey {
	parts := strings.Split(key, "/")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKeyTransform(pk *diskv.PathKey) string {
	return strings.Join(append(append([]string{}, pk.Path...), pk.FileName), "/")
}

// sanitize keeps letters, digits, dot, dash and underscore. Leading dots are
// dropped so no name resolves to a parent directory.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
