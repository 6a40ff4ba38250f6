package inventory

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Compare decimals numerically so gte/gt tags work on money fields.
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			d, ok := field.Interface().(decimal.Decimal)
			if !ok {
				return nil
			}
			f, _ := d.Float64()
			return f
		}, decimal.Decimal{})
		validate = v
	})
	return validate
}

// Validate checks struct tags on s and converts the first failure into a
// *ValidationError.
func Validate(s any) error {
	err := validatorInstance().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fieldName(fe.Field()), Reason: reason(fe)}
	}
	return &ValidationError{Reason: err.Error()}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "url":
		return "must be a URL"
	default:
		return "failed " + fe.Tag()
	}
}

// fieldName turns QuantityOnHand into quantityOnHand to match API payloads.
func fieldName(s string) string {
	if s == "" {
		return s
	}
	if strings.HasSuffix(s, "ID") && len(s) > 2 {
		return strings.ToLower(s[:1]) + s[1:len(s)-2] + "Id"
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func validateFields(f ProductFields) error {
	if f.Code != nil && strings.TrimSpace(*f.Code) == "" {
		return &ValidationError{Field: "code", Reason: "is required"}
	}
	if f.Name != nil && strings.TrimSpace(*f.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if f.QuantityOnHand != nil && *f.QuantityOnHand < 0 {
		return &ValidationError{Field: "quantityOnHand", Reason: "must be at least 0"}
	}
	if f.UnitCost != nil && f.UnitCost.IsNegative() {
		return &ValidationError{Field: "unitCost", Reason: "must be at least 0"}
	}
	if f.UnitPrice != nil && f.UnitPrice.IsNegative() {
		return &ValidationError{Field: "unitPrice", Reason: "must be at least 0"}
	}
	return nil
}
