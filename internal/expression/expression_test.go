package expression

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vars(pairs map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(pairs))
	for k, v := range pairs {
		out[k] = decimal.RequireFromString(v)
	}
	return out
}

func TestEvaluate_Arithmetic(t *testing.T) {
	cases := []struct {
		formula string
		vars    map[string]string
		want    string
	}{
		{"1 + 2", nil, "3"},
		{"2 * 3 + 4", nil, "10"},
		{"2 + 3 * 4", nil, "14"},
		{"(2 + 3) * 4", nil, "20"},
		{"10 / 4", nil, "2.5"},
		{"10 - 2 - 3", nil, "5"},
		{"100 / 10 / 2", nil, "5"},
		{"-3 + 5", nil, "2"},
		{"0.1 + 0.2", nil, "0.3"},
		{"ratio * total", map[string]string{"ratio": "0.25", "total": "400"}, "100"},
		{"cpu_seconds / 3600", map[string]string{"cpu_seconds": "7200"}, "2"},
	}

	for _, tc := range cases {
		t.Run(tc.formula, func(t *testing.T) {
			got, err := Evaluate(tc.formula, vars(tc.vars))
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"got %s want %s", got, tc.want)
		})
	}
}

func TestEvaluate_LeftToRightAssociativity(t *testing.T) {
	// (8 - 4) - 2, not 8 - (4 - 2).
	got, err := Evaluate("8 - 4 - 2", nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2)))
}

func TestEvaluate_Errors(t *testing.T) {
	cases := []struct {
		name    string
		formula string
		vars    map[string]string
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"unknown identifier", "a + 1", nil},
		{"division by zero", "1 / 0", nil},
		{"division by zero variable", "1 / x", map[string]string{"x": "0"}},
		{"unbalanced open", "(1 + 2", nil},
		{"unbalanced close", "1 + 2)", nil},
		{"trailing tokens", "1 + 2 3", nil},
		{"dangling operator", "1 +", nil},
		{"double dot number", "1.2.3", nil},
		{"unsupported character", "1 ^ 2", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Evaluate(tc.formula, vars(tc.vars))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedExpression)
		})
	}
}

func TestParse_Reusable(t *testing.T) {
	expr, err := Parse("units * unit_cost")
	require.NoError(t, err)

	first, err := expr.Evaluate(vars(map[string]string{"units": "3", "unit_cost": "1.5"}))
	require.NoError(t, err)
	assert.True(t, first.Equal(decimal.RequireFromString("4.5")))

	second, err := expr.Evaluate(vars(map[string]string{"units": "10", "unit_cost": "0.1"}))
	require.NoError(t, err)
	assert.True(t, second.Equal(decimal.NewFromInt(1)))
}
