package expression

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(value any) Evaluator {
	return Func(func(context.Context, string, map[string]any) (any, error) {
		return value, nil
	})
}

func TestBool(t *testing.T) {
	ok, err := Bool(t.Context(), constant(true), "x", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Bool(t.Context(), constant("true"), "x", nil)
	require.ErrorIs(t, err, ErrNotBoolean)

	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "x", typeErr.Expression)
	assert.Equal(t, "true", typeErr.Result)
}

func TestBool_EvaluatorError(t *testing.T) {
	boom := errors.New("boom")

	_, err := Bool(t.Context(), Func(func(context.Context, string, map[string]any) (any, error) {
		return nil, boom
	}), "x", nil)
	require.ErrorIs(t, err, boom)
}

func TestStrings(t *testing.T) {
	tests := []struct {
		name     string
		result   any
		expected []string
		err      error
	}{
		{name: "single string", result: "jdoe", expected: []string{"jdoe"}},
		{name: "empty string", result: "", expected: nil},
		{name: "string slice", result: []string{"a", "b"}, expected: []string{"a", "b"}},
		{name: "any slice", result: []any{"a", "b"}, expected: []string{"a", "b"}},
		{name: "nil", result: nil, expected: nil},
		{name: "mixed slice", result: []any{"a", 1}, err: ErrNotStrings},
		{name: "number", result: 3.0, err: ErrNotStrings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Strings(t.Context(), constant(tt.result), "assignees", nil)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStrings_EmptyExpressionSkipsEvaluation(t *testing.T) {
	got, err := Strings(t.Context(), Func(func(context.Context, string, map[string]any) (any, error) {
		t.Fatal("evaluator must not be called")

		return nil, nil
	}), "  ", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTime(t *testing.T) {
	due := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := Time(t.Context(), constant(due), "due", nil)
	require.NoError(t, err)
	assert.True(t, due.Equal(*got))

	got, err = Time(t.Context(), constant("2024-06-01T12:00:00Z"), "due", nil)
	require.NoError(t, err)
	assert.True(t, due.Equal(*got))

	got, err = Time(t.Context(), constant(due.UnixMilli()), "due", nil)
	require.NoError(t, err)
	assert.True(t, due.Equal(*got))

	got, err = Time(t.Context(), constant(float64(due.UnixMilli())), "due", nil)
	require.NoError(t, err)
	assert.True(t, due.Equal(*got))

	got, err = Time(t.Context(), constant(nil), "", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Time(t.Context(), constant("tomorrow"), "due", nil)
	require.ErrorIs(t, err, ErrNotDate)

	_, err = Time(t.Context(), constant(true), "due", nil)
	require.ErrorIs(t, err, ErrNotDate)
}

func TestLiteral(t *testing.T) {
	scope := map[string]any{
		"approved":      true,
		"NodeVariables": map[string]any{"button": "validate"},
	}

	tests := []struct {
		expression string
		expected   any
	}{
		{expression: "", expected: true},
		{expression: "true", expected: true},
		{expression: " false ", expected: false},
		{expression: "42", expected: 42.0},
		{expression: `"jdoe"`, expected: "jdoe"},
		{expression: `'bob'`, expected: "bob"},
		{expression: "approved", expected: true},
		{expression: "NodeVariables.button", expected: "validate"},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := Literal{}.Evaluate(t.Context(), tt.expression, scope)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := Literal{}.Evaluate(t.Context(), "NodeVariables.missing", scope)
	require.ErrorIs(t, err, ErrUnsupportedExpression)

	_, err = Literal{}.Evaluate(t.Context(), "a == b", scope)
	require.ErrorIs(t, err, ErrUnsupportedExpression)
}
