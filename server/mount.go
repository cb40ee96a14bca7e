package server

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/jonwraymond/pipecache/config"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/pipeline"
	"github.com/jonwraymond/pipecache/source"
)

// PathVar is the request variable holding the part of the request path
// below the mount.
const PathVar = "path"

// mount serves one URL prefix through one pipeline.
type mount struct {
	path      string
	meta      observe.PipelineMeta
	pipeline  *pipeline.Pipeline
	evaluator *pipeline.Evaluator
	mw        *observe.Middleware
}

func newMount(mc config.MountConfig, components map[string]pipeline.Component, ev *pipeline.Evaluator, mw *observe.Middleware) *mount {
	p := &pipeline.Pipeline{Name: mc.Name}
	for _, sc := range mc.Steps {
		p.Steps = append(p.Steps, pipeline.Step{
			Component: components[sc.Component],
			Src:       sc.Src,
			Params:    pipeline.Parameters(sc.Params).Clone(),
		})
	}
	return &mount{
		path:      mc.Path,
		meta:      observe.PipelineMeta{Name: mc.Name, Mount: mc.Path, Store: mc.Store},
		pipeline:  p,
		evaluator: ev,
		mw:        mw,
	}
}

func (m *mount) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	vars := requestVars(r, m.path)
	// A scheme in the path would let clients pick the resolver.
	if source.Scheme(vars[PathVar]) != "" {
		http.NotFound(w, r)
		return
	}

	env := pipeline.NewHTTPEnvironment(w, r)
	process := m.mw.Wrap(func(ctx context.Context, _ observe.PipelineMeta) (observe.Report, error) {
		stages, err := m.pipeline.Setup(ctx, env, vars)
		if err != nil {
			return failure(err), err
		}
		defer pipeline.Release(stages)

		out, err := m.evaluator.Process(ctx, env, m.pipeline.Name, stages)
		if err != nil {
			return failure(err), err
		}
		return out.Report(), nil
	})

	_, err := process(r.Context(), m.meta)
	if err != nil && !env.Committed() {
		writeError(w, env, pipeline.StatusFor(err))
		return
	}
	env.Commit()
}

// failure reports missing resources apart from processing faults.
func failure(err error) observe.Report {
	if pipeline.StatusFor(err) == http.StatusNotFound {
		return observe.Report{Outcome: observe.OutcomeNotFound}
	}
	return observe.Report{Outcome: observe.OutcomeError}
}

// requestVars exposes the query parameters and the path below prefix to
// step templates. The path wins over a query parameter of the same name.
func requestVars(r *http.Request, prefix string) map[string]string {
	q := r.URL.Query()
	vars := make(map[string]string, len(q)+1)
	for k, v := range q {
		if len(v) > 0 {
			vars[k] = v[0]
		}
	}
	vars[PathVar] = strings.TrimPrefix(r.URL.Path, prefix)
	return vars
}

// writeError replaces whatever entity headers the stages set with a plain
// text status body. Content-Range survives on 416.
func writeError(w http.ResponseWriter, env *pipeline.HTTPEnvironment, code int) {
	h := w.Header()
	for _, name := range []string{"Content-Length", "Last-Modified", "Expires", "Accept-Ranges", "Content-Encoding"} {
		h.Del(name)
	}
	if code != http.StatusRequestedRangeNotSatisfiable {
		h.Del("Content-Range")
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")

	env.SetStatus(code)
	env.Commit()
	_, _ = io.WriteString(w, http.StatusText(code)+"\n")
}
