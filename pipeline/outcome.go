package pipeline

import (
	"slices"
	"strings"

	"github.com/jonwraymond/pipecache/cachekey"
	"github.com/jonwraymond/pipecache/observe"
)

// State is a step of the evaluator's decision.
type State int

const (
	StateInit State = iota
	StateKeyComputed
	StateFullHit
	// StatePartialHit is reserved for resuming a pipeline from an
	// intermediate stage. The evaluator never enters it.
	StatePartialHit
	StateMiss
	StateNotModified
	StateRegenerating
	StateServed
	StateStored
)

var stateNames = [...]string{
	StateInit:         "init",
	StateKeyComputed:  "key-computed",
	StateFullHit:      "full-hit",
	StatePartialHit:   "partial-hit",
	StateMiss:         "miss",
	StateNotModified:  "not-modified",
	StateRegenerating: "regenerating",
	StateServed:       "served",
	StateStored:       "stored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Outcome describes how the evaluator handled one request.
type Outcome struct {
	// Path lists the states entered, in order.
	Path []State

	// Key is the composed pipeline key, NotCacheable when any stage was
	// not cacheable.
	Key cachekey.Key

	// StoreKey is the store key the entry lives under, empty when the
	// request bypassed the store.
	StoreKey string

	// Stored is true when this request committed a new entry.
	Stored bool

	// Shared is true when the payload was regenerated by a concurrent
	// request for the same key.
	Shared bool

	// ClientReset is true when the client stopped reading.
	ClientReset bool

	// Bytes is the number of payload bytes written to the client.
	Bytes int64
}

func (o *Outcome) enter(s State) { o.Path = append(o.Path, s) }

// Final returns the last state entered.
func (o Outcome) Final() State {
	if len(o.Path) == 0 {
		return StateInit
	}
	return o.Path[len(o.Path)-1]
}

// Entered reports whether the evaluator passed through s.
func (o Outcome) Entered(s State) bool { return slices.Contains(o.Path, s) }

// PathString renders Path as "init>key-computed>...".
func (o Outcome) PathString() string {
	names := make([]string, len(o.Path))
	for i, s := range o.Path {
		names[i] = s.String()
	}
	return strings.Join(names, ">")
}

// Report converts the outcome for telemetry.
func (o Outcome) Report() observe.Report {
	r := observe.Report{Stored: o.Stored}
	switch {
	case o.Entered(StateNotModified):
		r.Outcome = observe.OutcomeNotModified
	case o.Entered(StateFullHit):
		r.Outcome = observe.OutcomeHit
	case !o.Key.Cacheable() && o.Entered(StateMiss):
		r.Outcome = observe.OutcomeUncacheable
	case o.Entered(StateMiss):
		r.Outcome = observe.OutcomeMiss
	}
	return r
}
