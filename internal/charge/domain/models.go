// Package domain contains charge configuration: the pricing model attached
// to a plan, optionally bound to a meter.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ChargeModel is the closed set of pricing models.
type ChargeModel string

const (
	ModelStandard            ChargeModel = "STANDARD"
	ModelGraduated           ChargeModel = "GRADUATED"
	ModelVolume              ChargeModel = "VOLUME"
	ModelPackage             ChargeModel = "PACKAGE"
	ModelPercentage          ChargeModel = "PERCENTAGE"
	ModelGraduatedPercentage ChargeModel = "GRADUATED_PERCENTAGE"
	ModelDynamic             ChargeModel = "DYNAMIC"
	ModelCustom              ChargeModel = "CUSTOM"
)

// Valid reports whether the model is one of the supported variants.
func (m ChargeModel) Valid() bool {
	switch m {
	case ModelStandard, ModelGraduated, ModelVolume, ModelPackage,
		ModelPercentage, ModelGraduatedPercentage, ModelDynamic, ModelCustom:
		return true
	default:
		return false
	}
}

// Charge prices one meter (or a flat fee when MeterCode is nil) under a plan.
type Charge struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index"`
	PlanID     snowflake.ID      `json:"plan_id" gorm:"not null;index"`
	MeterCode  *string           `json:"meter_code" gorm:"type:text"`
	Model      ChargeModel       `json:"charge_model" gorm:"column:charge_model;type:text;not null"`
	Properties datatypes.JSONMap `json:"properties" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Charge) TableName() string { return "charges" }

var (
	ErrInvalidChargeModel      = errors.New("invalid_charge_model")
	ErrInvalidChargeProperties = errors.New("invalid_charge_properties")
)

// Tier is one step of a GRADUATED, VOLUME or GRADUATED_PERCENTAGE ladder.
// A nil UpTo means unbounded and is only valid on the last tier.
type Tier struct {
	UpTo       *decimal.Decimal `json:"up_to"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	FlatAmount decimal.Decimal  `json:"flat_amount"`
	Rate       decimal.Decimal  `json:"rate"`
}

// Properties is the typed view of the model-specific configuration bag.
type Properties struct {
	UnitPrice   decimal.Decimal
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	Tiers       []Tier
	PackageSize decimal.Decimal
	Percentage  decimal.Decimal
	Expression  string
}

// DecodeProperties validates and converts the raw bag for the charge's model.
// Missing or malformed required keys return ErrInvalidChargeProperties.
func (c *Charge) DecodeProperties() (Properties, error) {
	return DecodeProperties(c.Model, map[string]any(c.Properties))
}

func DecodeProperties(model ChargeModel, raw map[string]any) (Properties, error) {
	if !model.Valid() {
		return Properties{}, ErrInvalidChargeModel
	}

	props := Properties{
		UnitPrice:   decimalKey(raw, "unit_price"),
		MinPrice:    decimalKey(raw, "min_price"),
		MaxPrice:    decimalKey(raw, "max_price"),
		PackageSize: decimalKey(raw, "package_size"),
		Percentage:  decimalKey(raw, "percentage"),
	}
	if expr, ok := raw["expression"].(string); ok {
		props.Expression = expr
	}

	tiers, err := decodeTiers(raw["tiers"])
	if err != nil {
		return Properties{}, err
	}
	props.Tiers = tiers

	switch model {
	case ModelStandard:
		if !hasKey(raw, "unit_price") {
			return Properties{}, ErrInvalidChargeProperties
		}
	case ModelGraduated, ModelVolume, ModelGraduatedPercentage:
		if len(props.Tiers) == 0 {
			return Properties{}, ErrInvalidChargeProperties
		}
		var prevUpTo *decimal.Decimal
		for i, tier := range props.Tiers {
			// Unbounded tiers only close the ladder.
			if tier.UpTo == nil && i != len(props.Tiers)-1 {
				return Properties{}, ErrInvalidChargeProperties
			}
			if tier.UpTo == nil {
				continue
			}
			// Bounds must be strictly ascending.
			if prevUpTo != nil && !tier.UpTo.GreaterThan(*prevUpTo) {
				return Properties{}, ErrInvalidChargeProperties
			}
			prevUpTo = tier.UpTo
		}
	case ModelPackage:
		if !hasKey(raw, "unit_price") || props.PackageSize.Sign() <= 0 {
			return Properties{}, ErrInvalidChargeProperties
		}
	case ModelPercentage:
		if !hasKey(raw, "percentage") {
			return Properties{}, ErrInvalidChargeProperties
		}
	case ModelDynamic, ModelCustom:
		if props.Expression == "" {
			return Properties{}, ErrInvalidChargeProperties
		}
	}
	return props, nil
}

func hasKey(raw map[string]any, key string) bool {
	_, ok := raw[key]
	return ok
}

func decimalKey(raw map[string]any, key string) decimal.Decimal {
	value, ok := toDecimal(raw[key])
	if !ok {
		return decimal.Zero
	}
	return value
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func decodeTiers(value any) ([]Tier, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, ErrInvalidChargeProperties
	}
	tiers := make([]Tier, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, ErrInvalidChargeProperties
		}
		tier := Tier{
			UnitPrice:  decimalKey(entry, "unit_price"),
			FlatAmount: decimalKey(entry, "flat_amount"),
			Rate:       decimalKey(entry, "rate"),
		}
		if upTo, ok := toDecimal(entry["up_to"]); ok {
			tier.UpTo = &upTo
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}
