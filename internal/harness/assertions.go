package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/mixsync/internal/value"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s->%s %s %s %s\n", ev.Seq, ev.From, ev.To, ev.Type, ev.Label, ev.Outcome)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertConverged:
		return assertConverged(r)
	case AssertEntity:
		return assertEntity(r, a)
	case AssertAbsent:
		return assertAbsent(r, a)
	case AssertCount:
		return assertCount(r, a)
	case AssertDelivered:
		return assertDelivered(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertConverged compares peers by uuid, ignoring version and seq, which
// legitimately differ between the originating peer and the receiver.
func assertConverged(r *Result) error {
	a, b := byUUID(r.State[PeerA]), byUUID(r.State[PeerB])
	if len(a) != len(b) {
		return &AssertionError{
			Type:     AssertConverged,
			Expected: fmt.Sprintf("%d entities on both peers", len(a)),
			Actual:   fmt.Sprintf("a has %d, b has %d", len(a), len(b)),
			Trace:    r.Trace,
		}
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.UUID != y.UUID || x.Collection != y.Collection || x.Name != y.Name || !reflect.DeepEqual(x.Fields, y.Fields) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("a: %s %s/%s %v", x.UUID, x.Collection, x.Name, value.ToAny(x.Fields)),
				Actual:   fmt.Sprintf("b: %s %s/%s %v", y.UUID, y.Collection, y.Name, value.ToAny(y.Fields)),
				Trace:    r.Trace,
			}
		}
	}
	return nil
}

func byUUID(in []EntityState) []EntityState {
	out := append([]EntityState(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

func find(r *Result, peer, ref string) (EntityState, bool) {
	id := r.Aliases[ref]
	for _, e := range r.State[peer] {
		if e.UUID == id {
			return e, true
		}
	}
	return EntityState{}, false
}

func assertEntity(r *Result, a Assertion) error {
	e, ok := find(r, a.Peer, a.Ref)
	if !ok {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("entity %s on %s", a.Ref, a.Peer),
			Actual:   "not found",
			Trace:    r.Trace,
		}
	}
	if a.Name != "" && e.Name != a.Name {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("%s on %s named %q", a.Ref, a.Peer, a.Name),
			Actual:   fmt.Sprintf("named %q", e.Name),
			Trace:    r.Trace,
		}
	}
	if a.Collection != "" && e.Collection != a.Collection {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("%s on %s in %q", a.Ref, a.Peer, a.Collection),
			Actual:   fmt.Sprintf("in %q", e.Collection),
			Trace:    r.Trace,
		}
	}
	want, err := value.ObjectFromMap(a.Fields)
	if err != nil {
		return fmt.Errorf("assertion fields: %w", err)
	}
	for k, v := range want {
		if got, ok := e.Fields[k]; !ok || !reflect.DeepEqual(got, v) {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s on %s field %s = %v", a.Ref, a.Peer, k, value.ToAny(v)),
				Actual:   fmt.Sprintf("%v (present: %t)", value.ToAny(got), ok),
				Trace:    r.Trace,
			}
		}
	}
	return nil
}

func assertAbsent(r *Result, a Assertion) error {
	if e, ok := find(r, a.Peer, a.Ref); ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no entity %s on %s", a.Ref, a.Peer),
			Actual:   fmt.Sprintf("found %s/%s", e.Collection, e.Name),
			Trace:    r.Trace,
		}
	}
	return nil
}

func assertCount(r *Result, a Assertion) error {
	n := 0
	for _, e := range r.State[a.Peer] {
		if a.Collection == "" || e.Collection == a.Collection {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d entities in %q on %s", a.Count, a.Collection, a.Peer),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    r.Trace,
		}
	}
	return nil
}

func assertDelivered(r *Result, a Assertion) error {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type != a.MessageType {
			continue
		}
		if a.Outcome != "" && ev.Outcome != a.Outcome {
			continue
		}
		if a.Peer != "" && ev.To != a.Peer {
			continue
		}
		n++
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertDelivered,
			Expected: fmt.Sprintf("%d %s messages (outcome %q, to %q)", a.Count, a.MessageType, a.Outcome, a.Peer),
			Actual:   fmt.Sprintf("%d", n),
			Trace:    r.Trace,
		}
	}
	return nil
}
