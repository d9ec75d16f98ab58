// Package schema validates entity fields against per-collection CUE
// constraints.
//
// A schema file is a CUE struct keyed by collection name:
//
//	objects: {
//		location?:   [number, number, number]
//		pass_index?: int & >=0
//		...
//	}
//
// Collections the schema does not mention are accepted as is.
package schema

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/mixsync/internal/value"
)

// ValidationError reports the first violation found, with its position in
// the schema source when CUE provides one.
type ValidationError struct {
	Collection string
	Message    string
	Pos        token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Collection, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Collection, e.Message)
}

// Validator checks fields against a compiled schema. Safe for concurrent
// use; CUE evaluation is serialized.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// Compile compiles CUE source. filename is used in error positions.
func Compile(src, filename string) (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", formatCUEError("schema", err))
	}
	if root.IncompleteKind() != cue.StructKind {
		return nil, fmt.Errorf("compile schema: %s: top level must be a struct", filename)
	}
	return &Validator{ctx: ctx, root: root}, nil
}

// Load reads and compiles a schema file.
func Load(path string) (*Validator, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(string(src), path)
}

// Collections returns the collection names the schema constrains, sorted.
func (v *Validator) Collections() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	iter, err := v.root.Fields()
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	var names []string
	for iter.Next() {
		names = append(names, iter.Selector().Unquoted())
	}
	sort.Strings(names)
	return names, nil
}

// Validate checks fields against the constraint for collection.
func (v *Validator) Validate(collection string, fields value.Object) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	def := v.root.LookupPath(cue.MakePath(cue.Str(collection)))
	if !def.Exists() {
		return nil
	}

	data := v.ctx.Encode(value.ToAny(orEmpty(fields)))
	if err := data.Err(); err != nil {
		return &ValidationError{Collection: collection, Message: err.Error()}
	}
	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(collection, err)
	}
	return nil
}

func orEmpty(obj value.Object) value.Object {
	if obj == nil {
		return value.Object{}
	}
	return obj
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(collection string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Collection: collection, Message: err.Error()}
	}

	first := errs[0]
	verr := &ValidationError{Collection: collection, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		verr.Pos = positions[0]
	}
	return verr
}
