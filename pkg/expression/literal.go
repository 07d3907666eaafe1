package expression

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnsupportedExpression = errors.New("unsupported literal expression")

// Literal evaluates constants and plain variable references: true, false,
// numbers, quoted strings and names (dotted names walk nested maps).
type Literal struct{}

func (Literal) Evaluate(_ context.Context, expression string, scope map[string]any) (any, error) {
	exp := strings.TrimSpace(expression)

	switch {
	case exp == "":
		return true, nil
	case isQuoted(exp):
		return exp[1 : len(exp)-1], nil
	}

	if b, err := strconv.ParseBool(exp); err == nil {
		return b, nil
	}

	if n, err := strconv.ParseFloat(exp, 64); err == nil {
		return n, nil
	}

	value, ok := lookup(scope, strings.Split(exp, "."))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExpression, expression)
	}

	return value, nil
}

func isQuoted(exp string) bool {
	if len(exp) < 2 {
		return false
	}

	first, last := exp[0], exp[len(exp)-1]

	return (first == '"' || first == '\'') && first == last
}

func lookup(scope map[string]any, path []string) (any, bool) {
	value, ok := scope[path[0]]
	if !ok {
		return nil, false
	}

	if len(path) == 1 {
		return value, true
	}

	nested, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}

	return lookup(nested, path[1:])
}
