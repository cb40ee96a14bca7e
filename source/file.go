package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FileResolver serves files below Root.
//
// It accepts "file:" URIs and plain slash-separated paths. Both are taken
// relative to Root; a path that would leave Root is reported as
// ErrNotFound, as is a directory. Resolved sources carry the canonical
// form "file:///<path below root>", which resolves to the same file.
type FileResolver struct {
	root string
}

// NewFileResolver creates a resolver rooted at root.
func NewFileResolver(root string) (*FileResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("source: file root: %w", err)
	}
	return &FileResolver{root: abs}, nil
}

// Root returns the absolute root directory.
func (r *FileResolver) Root() string { return r.root }

// Resolve stats the file named by uri.
func (r *FileResolver) Resolve(_ context.Context, uri string) (Source, error) {
	rel := uri
	if rest, ok := strings.CutPrefix(uri, "file:"); ok {
		rest = strings.TrimPrefix(rest, "//")
		unescaped, err := url.PathUnescape(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidURI, uri)
		}
		rel = unescaped
	}

	// Clean as an absolute path first so ".." cannot climb above the root.
	clean := path.Clean("/" + rel)
	p := filepath.Join(r.root, filepath.FromSlash(clean))
	if p != r.root && !strings.HasPrefix(p, r.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("source: stat %s: %w", uri, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, uri)
	}

	return &fileSource{
		uri:     "file://" + clean,
		path:    p,
		modTime: info.ModTime(),
		size:    info.Size(),
	}, nil
}

// Release is a no-op; file sources hold no resources until opened.
func (r *FileResolver) Release(Source) {}

type fileSource struct {
	uri     string
	path    string
	modTime time.Time
	size    int64
}

func (s *fileSource) URI() string             { return s.uri }
func (s *fileSource) LastModified() time.Time { return s.modTime }
func (s *fileSource) ContentLength() int64    { return s.size }

func (s *fileSource) MimeType() string {
	return MimeTypeByName(s.path)
}

func (s *fileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.URI())
		}
		return nil, err
	}
	return f, nil
}

// MimeTypeByName guesses a content type from a file extension, falling
// back to application/octet-stream.
func MimeTypeByName(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
