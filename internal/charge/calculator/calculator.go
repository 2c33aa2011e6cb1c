// Package calculator rates aggregated usage under a charge model. Every
// calculator is a pure function of its inputs.
package calculator

import (
	"github.com/smallbiznis/meterflow/internal/charge/domain"
	"github.com/smallbiznis/meterflow/internal/eventstore"
	"github.com/smallbiznis/meterflow/internal/expression"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Extras carries the model-specific inputs beyond the aggregated unit count.
type Extras struct {
	// BaseAmount is the monetary base for PERCENTAGE and
	// GRADUATED_PERCENTAGE models.
	BaseAmount decimal.Decimal
	// EventProperties is the raw per-event property list for DYNAMIC.
	EventProperties []map[string]any
	// Variables extends the CUSTOM evaluation scope beyond {units}.
	Variables map[string]decimal.Decimal
}

// Calculate prices units under the model. A nil result means no line item:
// zero units produced a zero amount.
func Calculate(model domain.ChargeModel, units decimal.Decimal, props domain.Properties, extras Extras) (*decimal.Decimal, error) {
	var (
		amount decimal.Decimal
		err    error
	)
	switch model {
	case domain.ModelStandard:
		amount = standard(units, props)
	case domain.ModelGraduated:
		amount = graduated(units, props.Tiers)
	case domain.ModelVolume:
		amount = volume(units, props.Tiers)
	case domain.ModelPackage:
		amount = packaged(units, props)
	case domain.ModelPercentage:
		amount = extras.BaseAmount.Mul(props.Percentage).Div(hundred)
	case domain.ModelGraduatedPercentage:
		amount = graduatedPercentage(extras.BaseAmount, props.Tiers)
	case domain.ModelDynamic:
		amount, err = dynamic(props.Expression, extras.EventProperties)
	case domain.ModelCustom:
		amount, err = custom(props.Expression, units, extras.Variables)
	default:
		return nil, domain.ErrInvalidChargeModel
	}
	if err != nil {
		return nil, err
	}

	if units.IsZero() && amount.IsZero() {
		return nil, nil
	}
	return &amount, nil
}

func standard(units decimal.Decimal, props domain.Properties) decimal.Decimal {
	amount := units.Mul(props.UnitPrice)
	// Zero bounds mean unset.
	if props.MinPrice.Sign() > 0 && amount.LessThan(props.MinPrice) {
		amount = props.MinPrice
	}
	if props.MaxPrice.Sign() > 0 && amount.GreaterThan(props.MaxPrice) {
		amount = props.MaxPrice
	}
	return amount
}

// graduated consumes units tier by tier from the bottom. Usage landing
// exactly on a tier's up_to bills inside that tier.
func graduated(units decimal.Decimal, tiers []domain.Tier) decimal.Decimal {
	amount := decimal.Zero
	remaining := units
	previous := decimal.Zero
	for _, tier := range tiers {
		if remaining.Sign() <= 0 {
			break
		}
		used := remaining
		if tier.UpTo != nil {
			capacity := tier.UpTo.Sub(previous)
			if used.GreaterThan(capacity) {
				used = capacity
			}
			previous = *tier.UpTo
		}
		if used.Sign() <= 0 {
			continue
		}
		amount = amount.Add(used.Mul(tier.UnitPrice)).Add(tier.FlatAmount)
		remaining = remaining.Sub(used)
	}
	return amount
}

// volume prices all units at the single containing tier. Overflow past every
// bound falls into the last tier.
func volume(units decimal.Decimal, tiers []domain.Tier) decimal.Decimal {
	if len(tiers) == 0 {
		return decimal.Zero
	}
	selected := tiers[len(tiers)-1]
	for _, tier := range tiers {
		if tier.UpTo == nil || units.LessThanOrEqual(*tier.UpTo) {
			selected = tier
			break
		}
	}
	amount := units.Mul(selected.UnitPrice)
	if units.Sign() > 0 {
		amount = amount.Add(selected.FlatAmount)
	}
	return amount
}

func packaged(units decimal.Decimal, props domain.Properties) decimal.Decimal {
	if units.Sign() <= 0 {
		return decimal.Zero
	}
	packages := units.Div(props.PackageSize).RoundCeil(0)
	return packages.Mul(props.UnitPrice)
}

// graduatedPercentage walks the ladder over a monetary base, applying each
// tier's rate to its slice.
func graduatedPercentage(base decimal.Decimal, tiers []domain.Tier) decimal.Decimal {
	amount := decimal.Zero
	remaining := base
	previous := decimal.Zero
	for _, tier := range tiers {
		if remaining.Sign() <= 0 {
			break
		}
		used := remaining
		if tier.UpTo != nil {
			capacity := tier.UpTo.Sub(previous)
			if used.GreaterThan(capacity) {
				used = capacity
			}
			previous = *tier.UpTo
		}
		if used.Sign() <= 0 {
			continue
		}
		amount = amount.Add(used.Mul(tier.Rate).Div(hundred)).Add(tier.FlatAmount)
		remaining = remaining.Sub(used)
	}
	return amount
}

// dynamic evaluates the expression once per event and sums the results.
// Events missing a referenced variable contribute zero.
func dynamic(formula string, events []map[string]any) (decimal.Decimal, error) {
	expr, err := expression.Parse(formula)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, properties := range events {
		vars := make(map[string]decimal.Decimal, len(properties))
		for name, raw := range properties {
			if value, ok := eventstore.DecimalValue(raw); ok {
				vars[name] = value
			}
		}
		value, err := expr.Evaluate(vars)
		if err != nil {
			continue
		}
		total = total.Add(value)
	}
	return total, nil
}

// custom evaluates the expression once over {units, ...variables}.
func custom(formula string, units decimal.Decimal, variables map[string]decimal.Decimal) (decimal.Decimal, error) {
	expr, err := expression.Parse(formula)
	if err != nil {
		return decimal.Zero, err
	}
	vars := make(map[string]decimal.Decimal, len(variables)+1)
	for name, value := range variables {
		vars[name] = value
	}
	vars["units"] = units
	return expr.Evaluate(vars)
}
