package typedhttp

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MaxFormBytes caps the size of a URL-encoded form body (1MB).
const MaxFormBytes = 1 << 20

// FormDecoder implements RequestDecoder for URL-encoded form bodies.
type FormDecoder[T any] struct {
	validator *validator.Validate
	lenient   bool
	maxBytes  int64
}

// FormDecoderOption configures a FormDecoder.
type FormDecoderOption func(*formDecoderConfig)

type formDecoderConfig struct {
	lenient  bool
	maxBytes int64
}

// WithLenientNumbers makes unparseable numeric and boolean fields decode to
// their zero value instead of failing the request.
func WithLenientNumbers() FormDecoderOption {
	return func(c *formDecoderConfig) {
		c.lenient = true
	}
}

// WithMaxFormBytes overrides MaxFormBytes.
func WithMaxFormBytes(n int64) FormDecoderOption {
	return func(c *formDecoderConfig) {
		c.maxBytes = n
	}
}

// NewFormDecoder creates a new form data decoder. A nil validator skips
// validation so the caller can run its own rules.
func NewFormDecoder[T any](validator *validator.Validate, opts ...FormDecoderOption) *FormDecoder[T] {
	cfg := formDecoderConfig{maxBytes: MaxFormBytes}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &FormDecoder[T]{
		validator: validator,
		lenient:   cfg.lenient,
		maxBytes:  cfg.maxBytes,
	}
}

// Decode decodes form data into the target type using `form` struct tags.
func (d *FormDecoder[T]) Decode(r *http.Request) (T, error) {
	var result T

	if r.Body != nil {
		r.Body = http.MaxBytesReader(nil, r.Body, d.maxBytes)
	}
	if err := r.ParseForm(); err != nil {
		return result, NewValidationError("Validation failed", map[string]string{
			"form": fmt.Sprintf("failed to parse form data: %v", err),
		})
	}

	if err := bindValues(&result, r.PostForm, "form", d.lenient); err != nil {
		return result, err
	}

	if d.validator != nil {
		if err := d.validator.Struct(result); err != nil {
			return result, validationFailure(err)
		}
	}

	return result, nil
}

// ContentTypes returns the supported content types for form decoding.
func (d *FormDecoder[T]) ContentTypes() []string {
	return []string{"application/x-www-form-urlencoded"}
}
