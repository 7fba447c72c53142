package definition

import (
	"context"
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const filterResult = "__selected__"

// Filter is a compiled eligibility predicate.
type Filter struct {
	expr     string
	compiled *tengo.Compiled
}

// CompileFilter compiles a Tengo boolean expression over the variable
// `record`, e.g. `record.active && record.list_price > 0`. An empty
// expression yields a nil *Filter, which selects everything.
func CompileFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	script := tengo.NewScript([]byte(fmt.Sprintf("%s := (%s)", filterResult, expr)))
	if err := script.Add("record", map[string]interface{}{}); err != nil {
		return nil, err
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", err)
	}
	return &Filter{expr: expr, compiled: compiled}, nil
}

// Match evaluates the predicate for one record. Safe for concurrent use.
func (f *Filter) Match(ctx context.Context, record map[string]any) (bool, error) {
	if f == nil {
		return true, nil
	}

	c := f.compiled.Clone()
	if err := c.Set("record", scriptValue(record)); err != nil {
		return false, fmt.Errorf("failed to bind record: %w", err)
	}
	if err := c.RunContext(ctx); err != nil {
		return false, fmt.Errorf("failed to run filter %q: %w", f.expr, err)
	}
	return c.Get(filterResult).Bool(), nil
}

// scriptValue converts values decoded from the local store into types the
// Tengo runtime accepts.
func scriptValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = scriptValue(val)
		}
		return out
	case primitive.M:
		return scriptValue(map[string]any(x))
	case primitive.D:
		return scriptValue(map[string]any(x.Map()))
	case []any:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = scriptValue(val)
		}
		return out
	case primitive.A:
		return scriptValue([]any(x))
	case int32:
		return int64(x)
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.ObjectID:
		return x.Hex()
	case time.Time, string, int, int64, float64, bool, nil:
		return x
	}
	return fmt.Sprint(v)
}
