package validity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEvaluate_SimpleKinds(t *testing.T) {
	tests := []struct {
		name   string
		stored Token
		fresh  Token
		want   Result
	}{
		{"nil stored", nil, Always(), Invalid},
		{"never dominates", Never(), Never(), Invalid},
		{"always", Always(), Always(), Valid},
		{"always without fresh", Always(), nil, Valid},
		{"always vs timestamp", Always(), TimeStamp(1), Invalid},
		{"always vs deferred", Always(), Defer(nil), Unknown},
		{"fresh never", Always(), Never(), Invalid},
		{"fresh never against timestamp", TimeStamp(1000), Never(), Invalid},
		{"timestamp equal", TimeStamp(1000), TimeStamp(1000), Valid},
		{"timestamp newer", TimeStamp(1000), TimeStamp(2000), Invalid},
		{"timestamp older", TimeStamp(2000), TimeStamp(1000), Invalid},
		{"timestamp vs always", TimeStamp(1000), Always(), Invalid},
		{"timestamp vs deferred", TimeStamp(1000), Defer(nil), Unknown},
		{"timestamp without fresh", TimeStamp(1000), nil, Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.stored, tt.fresh); got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromTime_MillisecondPrecision(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123_456_789, time.UTC)
	a := FromTime(at)
	b := FromTime(at.Add(100 * time.Microsecond))
	if Evaluate(a, b) != Valid {
		t.Fatal("sub-millisecond differences must not invalidate")
	}
	if got := a.(TimeStampToken).Time(); !got.Equal(at.Truncate(time.Millisecond)) {
		t.Errorf("Time() = %v", got)
	}
}

func TestComposite_IsValid(t *testing.T) {
	tests := []struct {
		name string
		tok  Token
		want Result
	}{
		{"all always", Composite(Always(), Always()), Valid},
		{"one never", Composite(Always(), Never(), TimeStamp(1)), Invalid},
		{"timestamp child", Composite(Always(), TimeStamp(1)), Unknown},
		{"nil child is never", Composite(Always(), nil), Invalid},
		{"empty", Composite(), Valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.IsValid(); got != tt.want {
				t.Errorf("IsValid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComposite_Compare(t *testing.T) {
	stored := Composite(TimeStamp(10), Always(), TimeStamp(20))

	tests := []struct {
		name  string
		fresh Token
		want  Result
	}{
		{"unchanged", Composite(TimeStamp(10), Always(), TimeStamp(20)), Valid},
		{"second stage changed", Composite(TimeStamp(10), Always(), TimeStamp(21)), Invalid},
		{"first stage changed", Composite(TimeStamp(11), Always(), TimeStamp(20)), Invalid},
		{"arity mismatch", Composite(TimeStamp(10), Always()), Invalid},
		{"not composite", TimeStamp(10), Invalid},
		{"deferred child", Composite(TimeStamp(10), Always(), Defer(nil)), Unknown},
		{"always child became timestamp", Composite(TimeStamp(10), TimeStamp(5), TimeStamp(20)), Invalid},
		{"fresh never child", Composite(TimeStamp(10), Never(), TimeStamp(20)), Invalid},
		{"deferred whole", Defer(nil), Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(stored, tt.fresh); got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestComposite_ShortCircuit verifies an Invalid child wins even when a
// later child is undecided.
func TestComposite_ShortCircuit(t *testing.T) {
	stored := Composite(TimeStamp(1), TimeStamp(2))
	fresh := Composite(TimeStamp(5), Defer(nil))
	if got := Evaluate(stored, fresh); got != Invalid {
		t.Fatalf("Evaluate = %v, want invalid", got)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (Token, error) {
		calls++
		return TimeStamp(42), nil
	}

	resolved, err := Resolve(ctx, Composite(Always(), Defer(fetch)))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if HasDeferred(resolved) {
		t.Fatal("resolved token still deferred")
	}
	if calls != 1 {
		t.Errorf("fetch called %d times", calls)
	}
	if got := Evaluate(Composite(Always(), TimeStamp(42)), resolved); got != Valid {
		t.Errorf("Evaluate after resolve = %v", got)
	}

	plain := TimeStamp(1)
	if got, _ := Resolve(ctx, plain); got != plain {
		t.Error("concrete token should be returned unchanged")
	}
}

func TestResolve_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("row gone")

	if _, err := Resolve(ctx, Defer(func(context.Context) (Token, error) { return nil, boom })); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}

	loop := Defer(func(context.Context) (Token, error) { return Defer(nil), nil })
	if _, err := Resolve(ctx, loop); !errors.Is(err, ErrUnresolved) {
		t.Errorf("err = %v, want ErrUnresolved", err)
	}

	got, err := Resolve(ctx, Defer(func(context.Context) (Token, error) { return nil, nil }))
	if err != nil || got.Kind() != KindNever {
		t.Errorf("nil fetch result = %v, %v; want never", got, err)
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	tok := Composite(Always(), TimeStamp(1234), Composite(Never()))

	data, err := Marshal(tok)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Kind() != KindComposite || back.(CompositeToken).Len() != 3 {
		t.Fatalf("decoded = %#v", back)
	}
	// The nested Never still dominates after a round trip.
	if back.IsValid() != Invalid {
		t.Errorf("IsValid = %v", back.IsValid())
	}
	if got := back.(CompositeToken).Children()[1].(TimeStampToken).Millis(); got != 1234 {
		t.Errorf("millis = %d", got)
	}
}

func TestMarshal_Deferred(t *testing.T) {
	if _, err := Marshal(Composite(Always(), Defer(nil))); !errors.Is(err, ErrNotPersistable) {
		t.Fatalf("err = %v, want ErrNotPersistable", err)
	}
}

func TestUnmarshal_UnknownKind(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"kind":"etag"}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if _, err := Unmarshal([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestStrings(t *testing.T) {
	if Valid.String() != "valid" || Invalid.String() != "invalid" || Unknown.String() != "unknown" {
		t.Error("unexpected Result strings")
	}
	if KindDeferred.String() != "deferred" || Kind(99).String() != "unknown" {
		t.Error("unexpected Kind strings")
	}
}
