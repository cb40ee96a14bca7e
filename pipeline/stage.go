package pipeline

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/pipecache/cachekey"
	"github.com/jonwraymond/pipecache/validity"
)

// ContractKind tags the variants of Contract.
type ContractKind int

const (
	// ContractNone means the stage never participates in caching.
	ContractNone ContractKind = iota

	// ContractNotCacheable means the stage cannot be cached for this request
	// only, for example while a byte range is being served.
	ContractNotCacheable

	// ContractCacheable means the stage supplied a key and a validity token.
	ContractCacheable
)

func (k ContractKind) String() string {
	switch k {
	case ContractNone:
		return "uncacheable"
	case ContractNotCacheable:
		return "not-cacheable"
	case ContractCacheable:
		return "cacheable"
	default:
		return "unknown"
	}
}

// Contract is what a stage declares about caching its output.
type Contract struct {
	kind  ContractKind
	key   cachekey.Key
	token validity.Token
}

// Uncacheable is the contract of a stage with no caching support.
func Uncacheable() Contract { return Contract{kind: ContractNone} }

// NotCacheable is the provisional contract of a stage that cannot be cached
// for the current request.
func NotCacheable() Contract { return Contract{kind: ContractNotCacheable} }

// Cacheable declares a key and the token the output is valid under. A key
// that is itself not cacheable yields NotCacheable; a nil token is Never.
func Cacheable(key cachekey.Key, token validity.Token) Contract {
	if !key.Cacheable() {
		return NotCacheable()
	}
	if token == nil {
		token = validity.Never()
	}
	return Contract{kind: ContractCacheable, key: key, token: token}
}

// Kind returns the variant.
func (c Contract) Kind() ContractKind { return c.kind }

// Key returns the stage key, NotCacheable unless Kind is ContractCacheable.
func (c Contract) Key() cachekey.Key { return c.key }

// Token returns the validity token, nil unless Kind is ContractCacheable.
func (c Contract) Token() validity.Token { return c.token }

// RunFunc produces a stage's output. The first stage of a pipeline gets a
// nil input.
type RunFunc func(ctx context.Context, in io.Reader, out io.Writer) error

// Stage is a component bound to one request.
type Stage struct {
	// Name identifies the component in logs and errors.
	Name string

	// Contract is the caching declaration for this request.
	Contract Contract

	// LastModified is the instant the stage's inputs last changed.
	// Default: unknown
	LastModified time.Time

	// Expires is how long clients and proxies may reuse the response,
	// independently of server-side validity.
	// Default: 0 (no hint)
	Expires time.Duration

	// MimeType is the content type of the stage's output.
	MimeType string

	// Run produces the output.
	// Default: copies the input through
	Run RunFunc

	// Release frees request-scoped resources. It may be nil.
	Release func()
}

func (s *Stage) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.Run == nil {
		if in == nil {
			return fmt.Errorf("pipeline: stage %s: no input to pass through", s.Name)
		}
		_, err := io.Copy(out, in)
		return err
	}
	return s.Run(ctx, in, out)
}

// Parameters are the per-step options of a pipeline, after expansion.
type Parameters map[string]string

// String returns the named parameter or def when it is absent.
func (p Parameters) String(name, def string) string {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Int returns the named integer parameter or def when it is absent or empty.
func (p Parameters) Int(name string, def int) (int, error) {
	v := strings.TrimSpace(p[name])
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, v)
	}
	return n, nil
}

// Int64 returns the named 64-bit integer parameter or def.
func (p Parameters) Int64(name string, def int64) (int64, error) {
	v := strings.TrimSpace(p[name])
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, v)
	}
	return n, nil
}

// Bool returns the named boolean parameter or def. "yes" and "no" are
// accepted along with the strconv forms.
func (p Parameters) Bool(name string, def bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(p[name]))
	switch v {
	case "":
		return def, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, v)
	}
	return b, nil
}

// Clone returns a copy.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return Parameters{}
	}
	return maps.Clone(p)
}
