package typedhttp

import (
	"log/slog"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// HandlerRegistration stores metadata about a registered handler for OpenAPI generation.
type HandlerRegistration struct {
	Method       string
	Path         string
	RequestType  reflect.Type
	ResponseType reflect.Type
	Metadata     OpenAPIMetadata
}

// HTTPHandler wraps a typed handler with HTTP-specific functionality.
type HTTPHandler[TRequest, TResponse any] struct {
	handler     Handler[TRequest, TResponse]
	decoder     RequestDecoder[TRequest]
	encoder     ResponseEncoder[TResponse]
	errorMapper ErrorMapper
	middleware  []Middleware
	metadata    OpenAPIMetadata
	logger      *slog.Logger
}

// ServeHTTP implements http.Handler for the typed handler.
func (h *HTTPHandler[TRequest, TResponse]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var final http.Handler = http.HandlerFunc(h.serve)
	for i := len(h.middleware) - 1; i >= 0; i-- {
		final = h.middleware[i](final)
	}

	final.ServeHTTP(w, r)
}

func (h *HTTPHandler[TRequest, TResponse]) serve(w http.ResponseWriter, r *http.Request) {
	req, err := h.decoder.Decode(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp, err := h.handler.Handle(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if setter, ok := any(resp).(CookieSetter); ok {
		for _, c := range setter.Cookies() {
			http.SetCookie(w, c)
		}
	}

	if redirector, ok := any(resp).(Redirector); ok {
		if location, ok := redirector.RedirectTo(); ok {
			http.Redirect(w, r, location, http.StatusSeeOther)
			return
		}
	}

	statusCode := http.StatusOK
	if r.Method == http.MethodPost {
		statusCode = http.StatusCreated
	}
	if coder, ok := any(resp).(StatusCoder); ok && coder.StatusCode() != 0 {
		statusCode = coder.StatusCode()
	}

	if err := h.encoder.Encode(w, resp, statusCode); err != nil {
		// Headers are usually gone by now; all that is left is to record it.
		h.logger.ErrorContext(r.Context(), "encode response",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
}

// handleError handles errors using the configured error mapper.
func (h *HTTPHandler[TRequest, TResponse]) handleError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, response := h.errorMapper.MapError(err)

	if statusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", statusCode, "error", err)
	}

	encoder := NewJSONEncoder[interface{}]()
	if encodeErr := encoder.Encode(w, response, statusCode); encodeErr != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// TypedRouter routes typed handlers over a chi router and records their
// registrations for documentation.
type TypedRouter struct {
	handlers  []HandlerRegistration
	mux       chi.Router
	validator *validator.Validate
	logger    *slog.Logger
}

// RouterOption configures a TypedRouter.
type RouterOption func(*TypedRouter)

// WithValidator sets the validator used by default decoders.
func WithValidator(v *validator.Validate) RouterOption {
	return func(r *TypedRouter) {
		r.validator = v
	}
}

// WithLogger sets the logger used for encode and internal errors.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *TypedRouter) {
		r.logger = logger
	}
}

// NewRouter creates a new typed router.
func NewRouter(opts ...RouterOption) *TypedRouter {
	r := &TypedRouter{
		mux:    chi.NewRouter(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.validator == nil {
		r.validator = validator.New()
	}

	return r
}

// ServeHTTP implements http.Handler.
func (r *TypedRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use appends router-wide middleware. It must be called before any route
// is registered.
func (r *TypedRouter) Use(middleware ...Middleware) {
	for _, m := range middleware {
		r.mux.Use(m)
	}
}

// Handle registers a plain http.Handler that is not part of generated documents.
func (r *TypedRouter) Handle(method, path string, h http.Handler) {
	r.mux.Method(method, path, h)
}

// GetHandlers returns all registered handlers.
func (r *TypedRouter) GetHandlers() []HandlerRegistration {
	return r.handlers
}

// Validator returns the validator shared by default decoders.
func (r *TypedRouter) Validator() *validator.Validate {
	return r.validator
}

// RegisterHandler registers a typed handler with the specified method and path.
func RegisterHandler[TReq, TResp any](
	router *TypedRouter,
	method, path string,
	handler Handler[TReq, TResp],
	opts ...HandlerOption,
) {
	httpHandler := newHTTPHandler(router, handler, opts...)

	router.handlers = append(router.handlers, HandlerRegistration{
		Method:       method,
		Path:         path,
		RequestType:  reflect.TypeOf((*TReq)(nil)).Elem(),
		ResponseType: reflect.TypeOf((*TResp)(nil)).Elem(),
		Metadata:     httpHandler.metadata,
	})

	router.mux.Method(method, path, httpHandler)
}

// GET registers a handler for GET requests.
func GET[TReq, TResp any](router *TypedRouter, path string, handler Handler[TReq, TResp], opts ...HandlerOption) {
	RegisterHandler(router, http.MethodGet, path, handler, opts...)
}

// POST registers a handler for POST requests.
func POST[TReq, TResp any](router *TypedRouter, path string, handler Handler[TReq, TResp], opts ...HandlerOption) {
	RegisterHandler(router, http.MethodPost, path, handler, opts...)
}

func newHTTPHandler[TRequest, TResponse any](
	router *TypedRouter,
	handler Handler[TRequest, TResponse],
	opts ...HandlerOption,
) *HTTPHandler[TRequest, TResponse] {
	config := &HandlerConfig{}
	for _, opt := range opts {
		opt(config)
	}

	h := &HTTPHandler[TRequest, TResponse]{
		handler:     handler,
		errorMapper: &DefaultErrorMapper{},
		middleware:  config.Middleware,
		metadata:    config.Metadata,
		logger:      router.logger,
	}

	if decoder, ok := config.Decoder.(RequestDecoder[TRequest]); ok {
		h.decoder = decoder
	} else {
		h.decoder = defaultDecoder[TRequest](router.validator)
	}

	if encoder, ok := config.Encoder.(ResponseEncoder[TResponse]); ok {
		h.encoder = encoder
	} else {
		h.encoder = NewJSONEncoder[TResponse]()
	}

	if config.ErrorMapper != nil {
		h.errorMapper = config.ErrorMapper
	}

	return h
}

// defaultDecoder picks a decoder from the struct tags of T: query-only
// types decode from the URL, form-tagged types from the body form, and
// everything else from JSON.
func defaultDecoder[T any](v *validator.Validate) RequestDecoder[T] {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		return NewJSONDecoder[T](v)
	}

	var hasQuery, hasForm bool
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Tag.Get("query") != "" {
			hasQuery = true
		}
		if field.Tag.Get("form") != "" {
			hasForm = true
		}
	}

	switch {
	case hasForm:
		return NewFormDecoder[T](v)
	case hasQuery, t.NumField() == 0:
		return NewQueryDecoder[T](v)
	default:
		return NewJSONDecoder[T](v)
	}
}
