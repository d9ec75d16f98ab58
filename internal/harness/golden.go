package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/mixsync/internal/value"
)

// Snapshot renders a result as canonical JSON: the trace plus each peer's
// final entities. Aliases and assertion errors are not included.
func Snapshot(name string, r *Result) ([]byte, error) {
	trace := make(value.Array, len(r.Trace))
	for i, ev := range r.Trace {
		obj := value.Obj(
			value.F("seq", value.Int(ev.Seq)),
			value.F("from", value.String(ev.From)),
			value.F("to", value.String(ev.To)),
			value.F("type", value.String(ev.Type)),
			value.F("outcome", value.String(ev.Outcome)),
		)
		if ev.UUID != "" {
			obj["uuid"] = value.String(ev.UUID)
		}
		if ev.Label != "" {
			obj["label"] = value.String(ev.Label)
		}
		if ev.NewName != "" {
			obj["new_name"] = value.String(ev.NewName)
		}
		trace[i] = obj
	}

	state := value.Object{}
	for peer, entities := range r.State {
		list := make(value.Array, len(entities))
		for i, e := range entities {
			fields := e.Fields
			if fields == nil {
				fields = value.Object{}
			}
			list[i] = value.Obj(
				value.F("uuid", value.String(e.UUID)),
				value.F("collection", value.String(e.Collection)),
				value.F("name", value.String(e.Name)),
				value.F("fields", fields),
				value.F("version", value.Int(e.Version)),
			)
		}
		state[peer] = list
	}

	return value.Marshal(value.Obj(
		value.F("scenario_name", value.String(name)),
		value.F("trace", trace),
		value.F("state", state),
	))
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
