package typedhttp

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Error variables for static error handling.
var (
	ErrInvalidIntegerValue  = errors.New("invalid integer value")
	ErrInvalidFloatValue    = errors.New("invalid float value")
	ErrInvalidBooleanValue  = errors.New("invalid boolean value")
	ErrUnsupportedFieldType = errors.New("unsupported field type")
)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// JSONDecoder implements RequestDecoder for JSON content.
type JSONDecoder[T any] struct {
	validator *validator.Validate
}

// NewJSONDecoder creates a new JSON decoder with optional validation.
func NewJSONDecoder[T any](validator *validator.Validate) *JSONDecoder[T] {
	return &JSONDecoder[T]{
		validator: validator,
	}
}

// Decode decodes a JSON request body into the target type.
func (d *JSONDecoder[T]) Decode(r *http.Request) (T, error) {
	var result T

	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	if d.validator != nil {
		if err := d.validator.Struct(result); err != nil {
			return result, validationFailure(err)
		}
	}

	return result, nil
}

// ContentTypes returns the supported content types for JSON decoding.
func (d *JSONDecoder[T]) ContentTypes() []string {
	return []string{"application/json"}
}

// QueryDecoder implements RequestDecoder for URL query parameters.
type QueryDecoder[T any] struct {
	validator *validator.Validate
}

// NewQueryDecoder creates a new query parameter decoder.
func NewQueryDecoder[T any](validator *validator.Validate) *QueryDecoder[T] {
	return &QueryDecoder[T]{
		validator: validator,
	}
}

// Decode decodes query parameters into the target type using reflection.
func (d *QueryDecoder[T]) Decode(r *http.Request) (T, error) {
	var result T

	if err := bindValues(&result, r.URL.Query(), "query", false); err != nil {
		return result, err
	}

	if d.validator != nil {
		if err := d.validator.Struct(result); err != nil {
			return result, validationFailure(err)
		}
	}

	return result, nil
}

// ContentTypes returns the supported content types for query decoding.
func (d *QueryDecoder[T]) ContentTypes() []string {
	return []string{"application/x-www-form-urlencoded"}
}

// bindValues copies values into the exported fields of the struct behind
// target, keyed by the given tag. Fields without the tag are skipped. With
// lenient set, unparseable numbers and booleans leave the zero value.
func bindValues(target interface{}, values url.Values, tag string, lenient bool) error {
	rv := reflect.ValueOf(target).Elem()
	if rv.Kind() != reflect.Struct {
		return nil
	}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		name := field.Tag.Get(tag)
		if name == "" || name == "-" {
			continue
		}

		value := values.Get(name)
		if value == "" {
			if defaultValue := field.Tag.Get("default"); defaultValue != "" {
				value = defaultValue
			} else {
				continue
			}
		}

		if err := setFieldValue(fieldValue, value); err != nil {
			if lenient && !errors.Is(err, ErrUnsupportedFieldType) {
				continue
			}

			return NewValidationError("Validation failed", map[string]string{name: err.Error()})
		}
	}

	return nil
}

// setFieldValue sets a reflect.Value based on a string value.
func setFieldValue(fieldValue reflect.Value, value string) error {
	if fieldValue.CanAddr() && fieldValue.Addr().Type().Implements(textUnmarshalerType) {
		if err := fieldValue.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("invalid value %q: %w", value, err)
		}

		return nil
	}

	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidIntegerValue, value)
		}
		fieldValue.SetInt(intValue)
	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidFloatValue, value)
		}
		fieldValue.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidBooleanValue, value)
		}
		fieldValue.SetBool(boolValue)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, fieldValue.Kind())
	}

	return nil
}

// JSONEncoder implements ResponseEncoder for JSON content.
type JSONEncoder[T any] struct{}

// NewJSONEncoder creates a new JSON encoder.
func NewJSONEncoder[T any]() *JSONEncoder[T] {
	return &JSONEncoder[T]{}
}

// Encode encodes the response data as JSON and writes it to the response writer.
func (e *JSONEncoder[T]) Encode(w http.ResponseWriter, data T, statusCode int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// ContentType returns the content type for JSON encoding.
func (e *JSONEncoder[T]) ContentType() string {
	return "application/json"
}
