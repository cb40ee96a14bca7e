package validity

import (
	"context"
	"time"
)

// Result is the outcome of a validity check.
type Result int

const (
	// Invalid means the stored output is stale.
	Invalid Result = -1
	// Unknown means the token cannot decide on its own.
	Unknown Result = 0
	// Valid means the stored output may be replayed.
	Valid Result = 1
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Kind identifies the token variant.
type Kind int

const (
	KindNever Kind = iota
	KindAlways
	KindTimeStamp
	KindComposite
	KindDeferred
)

func (k Kind) String() string {
	switch k {
	case KindNever:
		return "never"
	case KindAlways:
		return "always"
	case KindTimeStamp:
		return "timestamp"
	case KindComposite:
		return "composite"
	case KindDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Token is an immutable freshness witness.
//
// Contract:
//   - IsValid answers without any other information; Unknown means a fresh
//     token is needed.
//   - Compare checks this token against a freshly computed one. Tokens of
//     different kinds compare Invalid, except that a deferred operand
//     yields Unknown.
type Token interface {
	Kind() Kind
	IsValid() Result
	Compare(fresh Token) Result
}

type never struct{}

// Never returns a token that is always stale.
func Never() Token { return never{} }

func (never) Kind() Kind             { return KindNever }
func (never) IsValid() Result        { return Invalid }
func (never) Compare(_ Token) Result { return Invalid }

type always struct{}

// Always returns a token that never invalidates.
func Always() Token { return always{} }

func (always) Kind() Kind      { return KindAlways }
func (always) IsValid() Result { return Valid }

func (always) Compare(fresh Token) Result {
	switch fresh.(type) {
	case always:
		return Valid
	case *Deferred:
		return Unknown
	default:
		return Invalid
	}
}

// TimeStampToken is valid while the witnessed instant is unchanged.
type TimeStampToken struct {
	ms int64
}

// TimeStamp returns a token for a modification instant in Unix milliseconds.
func TimeStamp(ms int64) Token { return TimeStampToken{ms: ms} }

// FromTime returns a TimeStamp token for t.
func FromTime(t time.Time) Token { return TimeStampToken{ms: t.UnixMilli()} }

func (TimeStampToken) Kind() Kind      { return KindTimeStamp }
func (TimeStampToken) IsValid() Result { return Unknown }

// Millis returns the witnessed instant in Unix milliseconds.
func (t TimeStampToken) Millis() int64 { return t.ms }

// Time returns the witnessed instant.
func (t TimeStampToken) Time() time.Time { return time.UnixMilli(t.ms) }

// Compare reports Valid only for an identical instant. A source that moved
// backwards in time is as stale as one that moved forwards.
func (t TimeStampToken) Compare(fresh Token) Result {
	switch f := fresh.(type) {
	case TimeStampToken:
		if f.ms == t.ms {
			return Valid
		}
		return Invalid
	case *Deferred:
		return Unknown
	default:
		return Invalid
	}
}

// Deferred stands in for a token that must be fetched from the source.
type Deferred struct {
	fetch func(ctx context.Context) (Token, error)
}

// Defer returns a token whose concrete value is produced by fetch on Resolve.
func Defer(fetch func(ctx context.Context) (Token, error)) Token {
	return &Deferred{fetch: fetch}
}

func (*Deferred) Kind() Kind             { return KindDeferred }
func (*Deferred) IsValid() Result        { return Unknown }
func (*Deferred) Compare(_ Token) Result { return Unknown }

// Evaluate decides whether output recorded under stored may be replayed
// for a request whose fresh token is fresh. A nil stored token is Invalid,
// and so is a fresh token that is Invalid on its own. A stored token that
// is Valid on its own still has to match the kind of a fresh token. An
// undecided stored token with no fresh token is Invalid.
func Evaluate(stored, fresh Token) Result {
	if stored == nil {
		return Invalid
	}
	if fresh != nil && fresh.IsValid() == Invalid {
		return Invalid
	}
	switch stored.IsValid() {
	case Invalid:
		return Invalid
	case Valid:
		if fresh == nil {
			return Valid
		}
	default:
		if fresh == nil {
			return Invalid
		}
	}
	return stored.Compare(fresh)
}
