// Package javascript evaluates route expressions with an embedded ECMAScript runtime.
package javascript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

const defaultTimeout = time.Second

var ErrTimeout = errors.New("expression evaluation timed out")

// Evaluator runs each expression in a fresh goja runtime with the scope bound
// as global variables.
type Evaluator struct {
	timeout time.Duration
}

type Option func(*Evaluator)

func WithTimeout(timeout time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = timeout
	}
}

func New(opts ...Option) *Evaluator {
	evaluator := &Evaluator{timeout: defaultTimeout}

	for _, opt := range opts {
		opt(evaluator)
	}

	return evaluator
}

func (e *Evaluator) Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error) {
	vm := goja.New()

	for name, value := range scope {
		jsValue, err := toJS(vm, value)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}

		err = vm.Set(name, jsValue)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ErrTimeout)
		case <-done:
		}
	}()

	result, err := vm.RunString(expression)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%w: %q", ErrTimeout, expression)
		}

		return nil, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}

	return result.Export(), nil
}

// toJS converts scope values, turning time.Time into JavaScript Date objects
// so date arithmetic works in expressions.
func toJS(vm *goja.Runtime, value any) (goja.Value, error) {
	switch typed := value.(type) {
	case time.Time:
		date, err := vm.New(vm.Get("Date"), vm.ToValue(typed.UnixMilli()))
		if err != nil {
			return nil, err
		}

		return date, nil
	case map[string]any:
		object := vm.NewObject()

		for key, item := range typed {
			jsItem, err := toJS(vm, item)
			if err != nil {
				return nil, err
			}

			err = object.Set(key, jsItem)
			if err != nil {
				return nil, err
			}
		}

		return object, nil
	case []any:
		items := make([]any, len(typed))

		for i, item := range typed {
			jsItem, err := toJS(vm, item)
			if err != nil {
				return nil, err
			}

			items[i] = jsItem
		}

		return vm.NewArray(items...), nil
	default:
		return vm.ToValue(value), nil
	}
}
