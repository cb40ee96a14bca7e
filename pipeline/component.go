package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Component is a configured pipeline component.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use; all
//     request state lives in the returned Stage.
//   - Errors: Setup returns ErrResourceNotFound when src does not exist.
type Component interface {
	// Name identifies the component.
	Name() string

	// Setup binds the component to one request.
	Setup(ctx context.Context, env Environment, src string, params Parameters) (*Stage, error)
}

// Step places a component in a pipeline. Src and parameter values may
// reference request variables as "{name}".
type Step struct {
	Component Component
	Src       string
	Params    Parameters
}

// Pipeline is an ordered list of steps. The first step produces output and
// each later step transforms the output of the one before it.
type Pipeline struct {
	Name  string
	Steps []Step
}

// Setup binds every step to the request in order. When a step fails the
// stages bound so far are released.
func (p *Pipeline) Setup(ctx context.Context, env Environment, vars map[string]string) ([]*Stage, error) {
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStages, p.Name)
	}

	stages := make([]*Stage, 0, len(p.Steps))
	for _, step := range p.Steps {
		params := make(Parameters, len(step.Params))
		for k, v := range step.Params {
			params[k] = Expand(v, vars)
		}

		st, err := step.Component.Setup(ctx, env, Expand(step.Src, vars), params)
		if err != nil {
			Release(stages)
			return nil, fmt.Errorf("pipeline %s: setup %s: %w", p.Name, step.Component.Name(), err)
		}
		if st.Name == "" {
			st.Name = step.Component.Name()
		}
		stages = append(stages, st)
	}
	return stages, nil
}

// Release releases stages in reverse order.
func Release(stages []*Stage) {
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i] != nil && stages[i].Release != nil {
			stages[i].Release()
		}
	}
}

// Expand replaces "{name}" with vars[name]. Unknown names are left as-is.
func Expand(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "{") {
		return s
	}
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			break
		}
		end += open
		b.WriteString(s[:open])
		if v, ok := vars[s[open+1:end]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[open : end+1])
		}
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}
