package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonwraymond/pipecache/cachekey"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/pipeline"
	"github.com/jonwraymond/pipecache/source"
	"github.com/jonwraymond/pipecache/validity"
)

// ResourceConfig configures a ResourceReader. Each option may be
// overridden per step by a parameter of the same name.
type ResourceConfig struct {
	// Expires is how long, in milliseconds, clients and proxies may reuse
	// the response. Zero or negative sends no Expires header.
	// Default: -1
	Expires int64 `yaml:"expires"`

	// QuickModifiedTest trusts the source's modification time for
	// conditional requests without checking that the request URI still
	// resolves to the source it resolved to last time.
	// Default: false
	QuickModifiedTest bool `yaml:"quick_modified_test"`

	// BufferSize is the copy buffer size in bytes.
	// Default: 8192
	BufferSize int `yaml:"buffer_size"`

	// ByteRanges enables Range requests.
	// Default: true
	ByteRanges *bool `yaml:"byte_ranges"`

	// MaxTracked bounds the request URIs remembered for the modified test.
	// Default: 4096
	MaxTracked int `yaml:"max_tracked"`
}

// Parameter names understood by ResourceReader.Setup.
const (
	ParamExpires           = "expires"
	ParamQuickModifiedTest = "quick-modified-test"
	ParamBufferSize        = "buffer-size"
	ParamByteRanges        = "byte-ranges"
)

const (
	defaultBufferSize = 8192
	defaultMaxTracked = 4096
)

type resourceOptions struct {
	expires    time.Duration
	quickTest  bool
	bufferSize int
	byteRanges bool
}

// ResourceReader serves a source as-is.
//
// Its key is the resolved source URI plus whether byte ranges are enabled;
// its validity is the source's modification time. A request carrying a
// Range header while ranges are enabled is served as 206 and is never
// cached.
type ResourceReader struct {
	cfg      ResourceConfig
	resolver source.Resolver
	logger   observe.Logger
	seen     *lastSeen
}

// NewResourceReader creates a reader resolving sources through resolver.
func NewResourceReader(cfg ResourceConfig, resolver source.Resolver, logger observe.Logger) *ResourceReader {
	if cfg.Expires == 0 {
		cfg.Expires = -1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.ByteRanges == nil {
		enabled := true
		cfg.ByteRanges = &enabled
	}
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = defaultMaxTracked
	}
	return &ResourceReader{
		cfg:      cfg,
		resolver: resolver,
		logger:   observe.OrNop(logger),
		seen:     newLastSeen(cfg.MaxTracked),
	}
}

// Name implements pipeline.Component.
func (r *ResourceReader) Name() string { return "resource" }

func (r *ResourceReader) options(params pipeline.Parameters) (resourceOptions, error) {
	expires, err := params.Int64(ParamExpires, r.cfg.Expires)
	if err != nil {
		return resourceOptions{}, err
	}
	quick, err := params.Bool(ParamQuickModifiedTest, r.cfg.QuickModifiedTest)
	if err != nil {
		return resourceOptions{}, err
	}
	size, err := params.Int(ParamBufferSize, r.cfg.BufferSize)
	if err != nil {
		return resourceOptions{}, err
	}
	if size <= 0 {
		size = defaultBufferSize
	}
	ranges, err := params.Bool(ParamByteRanges, *r.cfg.ByteRanges)
	if err != nil {
		return resourceOptions{}, err
	}

	opts := resourceOptions{quickTest: quick, bufferSize: size, byteRanges: ranges}
	if expires > 0 {
		opts.expires = time.Duration(expires) * time.Millisecond
	}
	return opts, nil
}

// Setup implements pipeline.Component.
func (r *ResourceReader) Setup(ctx context.Context, env pipeline.Environment, src string, params pipeline.Parameters) (*pipeline.Stage, error) {
	opts, err := r.options(params)
	if err != nil {
		return nil, err
	}
	st, _, err := r.bind(ctx, env, src, opts)
	return st, err
}

// bind resolves src and builds the stage. The returned source is released
// by the stage's Release.
func (r *ResourceReader) bind(ctx context.Context, env pipeline.Environment, src string, opts resourceOptions) (*pipeline.Stage, source.Source, error) {
	s, err := r.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, nil, err
	}

	st := &pipeline.Stage{
		Name:         r.Name(),
		LastModified: r.lastModified(env, s, opts),
		Expires:      opts.expires,
		MimeType:     s.MimeType(),
		Release:      func() { r.resolver.Release(s) },
	}

	if opts.byteRanges {
		env.SetHeader("Accept-Ranges", "bytes")
	} else {
		env.SetHeader("Accept-Ranges", "none")
	}

	if header := env.Header("Range"); opts.byteRanges && header != "" {
		total := s.ContentLength()
		br, err := ParseRange(header, total)
		if err != nil {
			env.SetHeader("Content-Range", UnsatisfiedRange(total))
			r.resolver.Release(s)
			return nil, nil, err
		}
		env.SetStatus(http.StatusPartialContent)
		env.SetHeader("Content-Range", br.ContentRange(total))
		env.SetHeader("Content-Length", strconv.FormatInt(br.Length(), 10))
		st.Contract = pipeline.NotCacheable()
		st.Run = func(ctx context.Context, _ io.Reader, out io.Writer) error {
			return copyRange(ctx, s, out, br, opts.bufferSize)
		}
		r.logger.Debug(ctx, "serving byte range",
			observe.F("source", s.URI()), observe.F("range", br.ContentRange(total)))
		return st, s, nil
	}

	key := cachekey.New(r.Name()).
		String("src", s.URI()).
		Bool("ranges", opts.byteRanges).
		Build()
	st.Contract = pipeline.Cacheable(key, tokenFor(s.LastModified()))
	st.Run = func(ctx context.Context, _ io.Reader, out io.Writer) error {
		return copySource(ctx, s, out, opts.bufferSize)
	}
	return st, s, nil
}

// lastModified is the instant reported for conditional requests. Without
// the quick test, a request URI that resolved to a different source last
// time reports unknown so the client gets a full response.
func (r *ResourceReader) lastModified(env pipeline.Environment, s source.Source, opts resourceOptions) time.Time {
	if opts.quickTest {
		return s.LastModified()
	}
	if !r.seen.check(env.RequestURI(), s.URI()) {
		return time.Time{}
	}
	return s.LastModified()
}

func tokenFor(mod time.Time) validity.Token {
	if mod.IsZero() {
		return validity.Never()
	}
	return validity.FromTime(mod)
}

func copySource(ctx context.Context, s source.Source, out io.Writer, bufferSize int) error {
	rc, err := s.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.CopyBuffer(out, rc, make([]byte, bufferSize)); err != nil {
		return fmt.Errorf("reader: copy %s: %w", s.URI(), err)
	}
	return nil
}

func copyRange(ctx context.Context, s source.Source, out io.Writer, br ByteRange, bufferSize int) error {
	rc, err := s.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	if seeker, ok := rc.(io.Seeker); ok {
		if _, err := seeker.Seek(br.Start, io.SeekStart); err != nil {
			return fmt.Errorf("reader: seek %s: %w", s.URI(), err)
		}
	} else if _, err := io.CopyN(io.Discard, rc, br.Start); err != nil {
		return fmt.Errorf("reader: skip %s: %w", s.URI(), err)
	}

	if _, err := io.CopyBuffer(out, io.LimitReader(rc, br.Length()), make([]byte, bufferSize)); err != nil {
		return fmt.Errorf("reader: copy %s: %w", s.URI(), err)
	}
	return nil
}

// lastSeen remembers which source each request URI resolved to.
type lastSeen struct {
	mu    sync.Mutex
	uris  map[string]string
	limit int
}

func newLastSeen(limit int) *lastSeen {
	return &lastSeen{uris: make(map[string]string), limit: limit}
}

// check records sourceURI for requestURI and reports whether it agrees
// with the previous record. A first sighting agrees.
func (l *lastSeen) check(requestURI, sourceURI string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok := l.uris[requestURI]
	if ok && prev == sourceURI {
		return true
	}
	if !ok && len(l.uris) >= l.limit {
		clear(l.uris)
	}
	l.uris[requestURI] = sourceURI
	return !ok
}
