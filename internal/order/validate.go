package order

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"
)

// FieldErrors maps a field's JSON name to a human-readable message.
type FieldErrors map[string]string

// emailPattern is intentionally loose: something@something.something.
var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// messages maps field and failed tag to the message shown next to the input.
var messages = map[string]map[string]string{
	"id":           {"notblank": "Order ID is required"},
	"customerName": {"notblank": "Customer Name is required"},
	"email": {
		"notblank":   "Email is required",
		"looseemail": "Email is invalid",
	},
	"price":    {"gt": "Price must be greater than 0"},
	"quantity": {"gte": "Quantity must be at least 1"},
	"size":     {"oneof": "Size must be one of XS, S, M, L, XL, XXL"},
	"fitType":  {"oneof": "Fit type must be one of Regular, Slim, Athletic, Relaxed, Compression"},
	"date":     {"isodate": "Date must be a valid YYYY-MM-DD date"},
}

// Validator returns the shared validator configured for order rules.
// It is safe for concurrent use.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(jsonFieldName)
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
		mustRegister(v, "notblank", validators.NotBlank)
		mustRegister(v, "looseemail", func(fl validator.FieldLevel) bool {
			return emailPattern.MatchString(fl.Field().String())
		})
		mustRegister(v, "isodate", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(DateLayout, fl.Field().String())
			return err == nil
		})
		validate = v
	})

	return validate
}

// Validate checks a candidate order and returns one message per failing
// field. The map is empty when the order can be submitted.
func Validate(o Order) FieldErrors {
	errs := FieldErrors{}

	err := Validator().Struct(o)
	if err == nil {
		return errs
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["_"] = err.Error()
		return errs
	}

	for _, fe := range fieldErrs {
		errs[fe.Field()] = fieldMessage(fe.Field(), fe.Tag())
	}

	return errs
}

func fieldMessage(field, tag string) string {
	if byTag, ok := messages[field]; ok {
		if msg, ok := byTag[tag]; ok {
			return msg
		}
	}

	return field + " is invalid"
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}

	return name
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}

	return nil
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("order: register validation " + tag + ": " + err.Error())
	}
}
