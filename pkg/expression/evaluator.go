// Package expression defines how route conditions, assignees, due dates and
// variable mappings are evaluated.
package expression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Evaluator evaluates an expression against a variable scope.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error)
}

// Func adapts a function to the Evaluator interface.
type Func func(ctx context.Context, expression string, scope map[string]any) (any, error)

func (f Func) Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error) {
	return f(ctx, expression, scope)
}

var (
	ErrNotBoolean = errors.New("does not evaluate to a boolean")
	ErrNotStrings = errors.New("does not evaluate to a string or a list of strings")
	ErrNotDate    = errors.New("does not evaluate to a date")
)

// TypeError reports an expression whose result has the wrong type.
type TypeError struct {
	Expression string
	Result     any
	Err        error
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expression %q %v (got %T)", e.Expression, e.Err, e.Result)
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

// Bool evaluates a condition. The result must be a boolean.
func Bool(ctx context.Context, evaluator Evaluator, expression string, scope map[string]any) (bool, error) {
	result, err := evaluator.Evaluate(ctx, expression, scope)
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, &TypeError{Expression: expression, Result: result, Err: ErrNotBoolean}
	}

	return b, nil
}

// Strings evaluates an expression returning a string or a list of strings.
// An empty expression yields no strings.
func Strings(ctx context.Context, evaluator Evaluator, expression string, scope map[string]any) ([]string, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	result, err := evaluator.Evaluate(ctx, expression, scope)
	if err != nil {
		return nil, err
	}

	switch typed := result.(type) {
	case nil:
		return nil, nil
	case string:
		if typed == "" {
			return nil, nil
		}

		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		out := make([]string, 0, len(typed))

		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, &TypeError{Expression: expression, Result: result, Err: ErrNotStrings}
			}

			out = append(out, s)
		}

		return out, nil
	default:
		return nil, &TypeError{Expression: expression, Result: result, Err: ErrNotStrings}
	}
}

// Time evaluates a date expression. Dates, RFC 3339 strings and epoch
// milliseconds are accepted. An empty expression yields nil.
func Time(ctx context.Context, evaluator Evaluator, expression string, scope map[string]any) (*time.Time, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	result, err := evaluator.Evaluate(ctx, expression, scope)
	if err != nil {
		return nil, err
	}

	var t time.Time

	switch typed := result.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t = typed
	case string:
		t, err = time.Parse(time.RFC3339, typed)
		if err != nil {
			return nil, &TypeError{Expression: expression, Result: result, Err: ErrNotDate}
		}
	case int64:
		t = time.UnixMilli(typed)
	case float64:
		t = time.UnixMilli(int64(typed))
	default:
		return nil, &TypeError{Expression: expression, Result: result, Err: ErrNotDate}
	}

	t = t.UTC()

	return &t, nil
}
