// Package validate registers the custom validation tags used by request DTOs.
package validate

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/provider"
)

const dateLayout = "20060102"

// CustomValidate registers the custom tags on the shared validator
func CustomValidate() {
	register(config.App().Validator)
}

// New returns a validator with the custom tags registered
func New() *validator.Validate {
	v := validator.New()
	register(v)
	return v
}

func register(v *validator.Validate) {
	_ = v.RegisterValidation("amount", amount)
	_ = v.RegisterValidation("ratio", ratio)
	_ = v.RegisterValidation("yyyymmdd", yyyymmdd)
}

// amount accepts a non-negative decimal with at most two fractional digits
func amount(fl validator.FieldLevel) bool {
	d, err := provider.ParseAmount(fl.Field().String())
	if err != nil || d.IsNegative() {
		return false
	}
	return d.Equal(d.Round(2))
}

// ratio accepts a decimal in (0, 1]
func ratio(fl validator.FieldLevel) bool {
	d, err := provider.ParseAmount(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive() && d.LessThanOrEqual(decimal.NewFromInt(1))
}

func yyyymmdd(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
