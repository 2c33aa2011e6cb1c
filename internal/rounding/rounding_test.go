package rounding

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApply(t *testing.T) {
	two := int32(2)
	zero := int32(0)

	cases := []struct {
		name      string
		value     string
		fn        Function
		precision *int32
		want      string
	}{
		{"none keeps value", "1.2345", FunctionNone, &two, "1.2345"},
		{"round half up", "1.235", FunctionRound, &two, "1.24"},
		{"round half up at integer", "2.5", FunctionRound, nil, "3"},
		{"round down", "1.234", FunctionRound, &two, "1.23"},
		{"round negative half toward positive", "-2.5", FunctionRound, nil, "-2"},
		{"round negative below half", "-2.6", FunctionRound, nil, "-3"},
		{"round negative half at precision", "-1.235", FunctionRound, &two, "-1.23"},
		{"ceil", "1.231", FunctionCeil, &two, "1.24"},
		{"ceil integer", "1.01", FunctionCeil, &zero, "2"},
		{"floor", "1.239", FunctionFloor, &two, "1.23"},
		{"floor integer", "1.99", FunctionFloor, nil, "1"},
		{"nil precision defaults to zero", "1.5", FunctionRound, nil, "2"},
		{"unknown function keeps value", "1.5", Function("bogus"), nil, "1.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Apply(d(tc.value), tc.fn, tc.precision)
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}
