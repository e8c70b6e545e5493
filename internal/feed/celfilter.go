package feed

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/internal/storage"
)

// CompileFilter compiles a CEL expression into a storage.Filter. An empty
// expression compiles to a nil filter, which keeps everything.
//
// Variables available to the expression:
//
//	actor    string  actor id
//	verb     int     verb id
//	object   string  object id
//	target   string  target id, empty when unset
//	time_ms  int     activity time in unix milliseconds
//	context  dyn     the activity's opaque context map
//
// Aggregated groups are evaluated against their newest member; entries
// that carry no evaluable activity pass through.
func CompileFilter(expr string) (storage.Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.StringType),
		cel.Variable("verb", cel.IntType),
		cel.Variable("object", cel.StringType),
		cel.Variable("target", cel.StringType),
		cel.Variable("time_ms", cel.IntType),
		cel.Variable("context", cel.DynType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}

	return func(e activity.Entry) bool {
		var a *activity.Activity
		switch v := e.(type) {
		case *activity.Activity:
			a = v
		case *activity.AggregatedActivity:
			a = v.LastActivity()
		}
		if a == nil {
			return true
		}
		ctx := a.Context
		if ctx == nil {
			ctx = map[string]interface{}{}
		}
		out, _, err := prog.Eval(map[string]any{
			"actor":   a.ActorID,
			"verb":    int64(a.VerbID),
			"object":  a.ObjectID,
			"target":  a.TargetID,
			"time_ms": a.Time.UnixMilli(),
			"context": ctx,
		})
		if err != nil {
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}, nil
}
