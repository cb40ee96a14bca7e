package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/pipecache/cachekey"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/validity"
)

// DefaultKeyPrefix is the first store key segment of every entry.
const DefaultKeyPrefix = "pipeline"

// Store is the persistence the evaluator needs. *store.FilesystemStore
// satisfies it.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Get never fails; unreadable entries are absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Store(ctx context.Context, key string, value any) error
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(e *Evaluator) { e.logger = observe.OrNop(l) }
}

// WithClock replaces time.Now, used for Expires and entry creation times.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithKeyPrefix sets the first segment of store keys.
func WithKeyPrefix(prefix string) Option {
	return func(e *Evaluator) { e.prefix = strings.Trim(prefix, "/") }
}

// WithSharedRegeneration makes concurrent misses for the same store key
// share one regeneration.
func WithSharedRegeneration() Option {
	return func(e *Evaluator) { e.group = &singleflight.Group{} }
}

// Evaluator decides, per request, whether a pipeline's output is replayed
// from the store or regenerated.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: store failures are logged and treated as misses. Process
//     returns ErrResourceNotFound when a deferred validity check finds the
//     source gone, and stage errors otherwise. A client that stops reading
//     is not an error.
//   - Store: an entry is written only after the payload was produced
//     completely and delivered to the client. Requests with a stage that is
//     not cacheable never read or write the store.
type Evaluator struct {
	store  Store
	logger observe.Logger
	now    func() time.Time
	prefix string
	group  *singleflight.Group
}

// NewEvaluator creates an evaluator over store. A nil store disables
// caching; every request is streamed.
func NewEvaluator(store Store, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:  store,
		logger: observe.NopLogger(),
		now:    time.Now,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StoreKey returns the store key for a pipeline key.
func (e *Evaluator) StoreKey(name string, key cachekey.Key) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.prefix, strings.Trim(name, "/"), key.Hash()} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

// Process serves one request through the bound stages of pipeline name.
func (e *Evaluator) Process(ctx context.Context, env Environment, name string, stages []*Stage) (Outcome, error) {
	var out Outcome
	out.enter(StateInit)
	if len(stages) == 0 {
		return out, fmt.Errorf("%w: %s", ErrNoStages, name)
	}

	logger := e.logger.WithPipeline(observe.PipelineMeta{Name: name})
	resp := newResponse(stages, e.now())

	if resp.notModified(env) {
		out.enter(StateNotModified)
		resp.writeHeaders(env)
		env.SetStatus(http.StatusNotModified)
		logger.Debug(ctx, "not modified", observe.F("last_modified", resp.lastModified))
		return out, nil
	}

	key, fresh := compose(stages)
	out.Key = key
	if !key.Cacheable() || e.store == nil {
		out.enter(StateMiss)
		return e.stream(ctx, env, logger, stages, resp, out)
	}

	storeKey := e.StoreKey(name, key)
	if err := cachekey.Validate(storeKey); err != nil {
		logger.Warn(ctx, "unusable store key, not caching", observe.Err(err))
		out.enter(StateMiss)
		return e.stream(ctx, env, logger, stages, resp, out)
	}
	out.StoreKey = storeKey
	out.enter(StateKeyComputed)

	storable := true
	if entry := e.lookup(ctx, logger, storeKey, key); entry != nil {
		verdict, resolved, err := e.evaluate(ctx, entry, fresh)
		switch {
		case errors.Is(err, ErrResourceNotFound):
			return out, err
		case err != nil:
			logger.Warn(ctx, "validity check failed, regenerating without storing",
				observe.F("store.key", storeKey), observe.Err(err))
			storable = false
		default:
			fresh = resolved
		}
		if verdict == validity.Valid {
			resp.adopt(stages, fresh)
			out.enter(StateFullHit)
			return e.replay(ctx, env, logger, entry, resp, out)
		}
	}

	out.enter(StateMiss)
	return e.regenerate(ctx, env, logger, stages, resp, out, fresh, storable)
}

// compose returns the pipeline key and the composite token, or
// NotCacheable when any stage is not cacheable.
func compose(stages []*Stage) (cachekey.Key, validity.Token) {
	keys := make([]cachekey.Key, len(stages))
	tokens := make([]validity.Token, len(stages))
	for i, st := range stages {
		if st.Contract.Kind() != ContractCacheable {
			return cachekey.NotCacheable, nil
		}
		keys[i] = st.Contract.Key()
		tokens[i] = st.Contract.Token()
	}
	return cachekey.Compose(keys...), validity.Composite(tokens...)
}

func (e *Evaluator) lookup(ctx context.Context, logger observe.Logger, storeKey string, key cachekey.Key) *Entry {
	data, ok := e.store.Get(ctx, storeKey)
	if !ok {
		return nil
	}
	entry, err := UnmarshalEntry(data)
	if err != nil {
		logger.Warn(ctx, "discarding unreadable entry", observe.F("store.key", storeKey), observe.Err(err))
		return nil
	}
	if entry.Key != key.String() {
		logger.Warn(ctx, "store key collision", observe.F("store.key", storeKey))
		return nil
	}
	return entry
}

// evaluate compares the entry's token with fresh. An Unknown verdict
// resolves the deferred parts of fresh and compares again; what is still
// Unknown afterwards is Invalid.
func (e *Evaluator) evaluate(ctx context.Context, entry *Entry, fresh validity.Token) (validity.Result, validity.Token, error) {
	stored, err := entry.Token()
	if err != nil {
		return validity.Invalid, fresh, nil
	}
	verdict := validity.Evaluate(stored, fresh)
	if verdict == validity.Unknown && validity.HasDeferred(fresh) {
		resolved, err := validity.Resolve(ctx, fresh)
		if err != nil {
			return validity.Invalid, fresh, err
		}
		fresh = resolved
		verdict = validity.Evaluate(stored, fresh)
	}
	if verdict == validity.Unknown {
		verdict = validity.Invalid
	}
	return verdict, fresh, nil
}

func (e *Evaluator) replay(ctx context.Context, env Environment, logger observe.Logger, entry *Entry, resp *response, out Outcome) (Outcome, error) {
	if resp.mimeType == "" {
		resp.mimeType = entry.MimeType
	}
	if resp.lastModified.IsZero() {
		resp.lastModified = entry.LastModified
	}
	n, err := resp.send(env, entry.Payload)
	out.Bytes = n
	if err != nil {
		return e.clientReset(ctx, logger, out, err), nil
	}
	out.enter(StateServed)
	logger.Debug(ctx, "served from store", observe.F("store.key", out.StoreKey), observe.F("bytes", n))
	return out, nil
}

// stream runs the stages straight into the response, bypassing the store.
func (e *Evaluator) stream(ctx context.Context, env Environment, logger observe.Logger, stages []*Stage, resp *response, out Outcome) (Outcome, error) {
	out.enter(StateRegenerating)
	resp.writeHeaders(env)

	cw := &countingWriter{w: env.Writer()}
	err := runStages(ctx, stages, cw)
	out.Bytes = cw.n
	if cw.err != nil {
		return e.clientReset(ctx, logger, out, cw.err), nil
	}
	if err != nil {
		return out, err
	}
	out.enter(StateServed)
	return out, nil
}

// regenerated is the result of one regeneration, possibly shared between
// concurrent requests. The first request that delivers it commits it.
type regenerated struct {
	payload []byte
	// witness is the resolved token taken before the stages ran; token is
	// the same token when the result may be stored.
	witness validity.Token
	token   validity.Token
	once    sync.Once
}

func (e *Evaluator) regenerate(ctx context.Context, env Environment, logger observe.Logger, stages []*Stage, resp *response, out Outcome, fresh validity.Token, storable bool) (Outcome, error) {
	out.enter(StateRegenerating)

	// Deferred validity is resolved before the stages run. A source that
	// changes during production then leaves an entry that is already stale.
	produce := func(ctx context.Context) (*regenerated, error) {
		res := &regenerated{}
		if storable {
			token, err := validity.Resolve(ctx, fresh)
			switch {
			case errors.Is(err, ErrResourceNotFound):
				return nil, err
			case err != nil:
				logger.Warn(ctx, "validity unavailable, not storing",
					observe.F("store.key", out.StoreKey), observe.Err(err))
			case token.IsValid() == validity.Invalid:
				res.witness = token
			default:
				res.witness, res.token = token, token
			}
		}
		var buf bytes.Buffer
		if err := runStages(ctx, stages, &buf); err != nil {
			return nil, err
		}
		res.payload = buf.Bytes()
		return res, nil
	}

	var res *regenerated
	if e.group != nil {
		// Followers wait on this production; one client going away must
		// not fail the others.
		detached := context.WithoutCancel(ctx)
		v, err, shared := e.group.Do(out.StoreKey, func() (any, error) { return produce(detached) })
		if err != nil {
			return out, err
		}
		res, out.Shared = v.(*regenerated), shared
	} else {
		var err error
		if res, err = produce(ctx); err != nil {
			return out, err
		}
	}

	resp.adopt(stages, res.witness)
	n, err := resp.send(env, res.payload)
	out.Bytes = n
	if err != nil {
		return e.clientReset(ctx, logger, out, err), nil
	}
	out.enter(StateServed)

	if res.token != nil && e.commit(ctx, logger, res, out.Key, out.StoreKey, resp) {
		out.Stored = true
		out.enter(StateStored)
	}
	return out, nil
}

func (e *Evaluator) commit(ctx context.Context, logger observe.Logger, res *regenerated, key cachekey.Key, storeKey string, resp *response) bool {
	stored := false
	res.once.Do(func() {
		entry, err := NewEntry(key.String(), res.token, res.payload, e.now())
		if err != nil {
			logger.Warn(ctx, "cannot build entry", observe.F("store.key", storeKey), observe.Err(err))
			return
		}
		entry.MimeType = resp.mimeType
		entry.LastModified = resp.lastModified
		data, err := MarshalEntry(entry)
		if err != nil {
			logger.Warn(ctx, "cannot encode entry", observe.F("store.key", storeKey), observe.Err(err))
			return
		}
		if err := e.store.Store(ctx, storeKey, data); err != nil {
			logger.Warn(ctx, "store write failed", observe.F("store.key", storeKey), observe.Err(err))
			return
		}
		stored = true
		logger.Debug(ctx, "entry stored", observe.F("store.key", storeKey), observe.F("bytes", len(res.payload)))
	})
	return stored
}

func (e *Evaluator) clientReset(ctx context.Context, logger observe.Logger, out Outcome, err error) Outcome {
	out.ClientReset = true
	logger.Debug(ctx, "client stream reset", observe.F("bytes", out.Bytes),
		observe.Err(fmt.Errorf("%w: %v", ErrClientReset, err)))
	return out
}

// runStages feeds each stage's output into the next. Only the last stage
// writes to out.
func runStages(ctx context.Context, stages []*Stage, out io.Writer) error {
	var in io.Reader
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == len(stages)-1 {
			if err := st.run(ctx, in, out); err != nil {
				return fmt.Errorf("pipeline: stage %s: %w", st.Name, err)
			}
			return nil
		}
		var buf bytes.Buffer
		if err := st.run(ctx, in, &buf); err != nil {
			return fmt.Errorf("pipeline: stage %s: %w", st.Name, err)
		}
		in = &buf
	}
	return nil
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil && c.err == nil {
		c.err = err
	}
	return n, err
}

// response holds the headers derived from the bound stages.
type response struct {
	lastModified time.Time
	expires      time.Time
	mimeType     string
}

func newResponse(stages []*Stage, now time.Time) *response {
	r := &response{}

	known := true
	var minExpiry time.Duration
	for i, st := range stages {
		if st.LastModified.IsZero() {
			known = false
		} else if st.LastModified.After(r.lastModified) {
			r.lastModified = st.LastModified
		}
		if i == 0 || (minExpiry > 0 && st.Expires < minExpiry) {
			minExpiry = st.Expires
		}
	}
	if !known {
		r.lastModified = time.Time{}
	}
	if minExpiry > 0 {
		r.expires = now.Add(minExpiry)
	}
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i].MimeType != "" {
			r.mimeType = stages[i].MimeType
			break
		}
	}
	return r
}

// adopt fills in an unknown Last-Modified from token, the resolved
// composite of the stages. Every stage without its own modification time
// must be witnessed by a timestamp.
func (r *response) adopt(stages []*Stage, token validity.Token) {
	if !r.lastModified.IsZero() {
		return
	}
	c, ok := token.(validity.CompositeToken)
	if !ok || c.Len() != len(stages) {
		return
	}
	var latest time.Time
	for i, child := range c.Children() {
		mod := stages[i].LastModified
		if mod.IsZero() {
			ts, ok := child.(validity.TimeStampToken)
			if !ok {
				return
			}
			mod = ts.Time()
		}
		if mod.After(latest) {
			latest = mod
		}
	}
	r.lastModified = latest
}

// notModified reports whether a conditional GET can be answered with 304.
func (r *response) notModified(env Environment) bool {
	if r.lastModified.IsZero() {
		return false
	}
	if m := env.Method(); m != "" && m != http.MethodGet && m != http.MethodHead {
		return false
	}
	since, ok := env.DateHeader("If-Modified-Since")
	if !ok {
		return false
	}
	return !r.lastModified.Truncate(time.Second).After(since)
}

func (r *response) writeHeaders(env Environment) {
	if !r.lastModified.IsZero() {
		env.SetDateHeader("Last-Modified", r.lastModified)
	}
	if !r.expires.IsZero() {
		env.SetDateHeader("Expires", r.expires)
	}
	if r.mimeType != "" {
		env.SetHeader("Content-Type", r.mimeType)
	}
}

func (r *response) send(env Environment, payload []byte) (int64, error) {
	r.writeHeaders(env)
	env.SetHeader("Content-Length", strconv.Itoa(len(payload)))
	n, err := env.Writer().Write(payload)
	return int64(n), err
}
