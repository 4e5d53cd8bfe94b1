// Package openapi builds OpenAPI 3 documents from the handlers registered
// on a typedhttp.TypedRouter.
package openapi

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/pavelpascari/ordermanager/pkg/typedhttp"
)

const (
	bearerScheme = "bearerAuth"
	cookieScheme = "cookieAuth"
)

// Config holds OpenAPI generation configuration.
type Config struct {
	Info    Info     `json:"info"`
	Servers []Server `json:"servers,omitempty"`
	// SessionCookie, when set, documents cookie authentication next to
	// bearer tokens for secured operations.
	SessionCookie string `json:"session_cookie,omitempty"`
}

// Info represents OpenAPI info object.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Server represents OpenAPI server object.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

var (
	timeType          = reflect.TypeOf(time.Time{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// Generator generates OpenAPI specifications from TypedHTTP routers.
type Generator struct {
	config    Config
	errSchema *openapi3.SchemaRef
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(config *Config) *Generator {
	return &Generator{
		config: *config,
	}
}

// Generate creates an OpenAPI specification from a TypedHTTP router.
// Hidden registrations are skipped.
func (g *Generator) Generate(router *typedhttp.TypedRouter) (*openapi3.T, error) {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.config.Info.Title,
			Version:     g.config.Info.Version,
			Description: g.config.Info.Description,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas:         make(openapi3.Schemas),
			SecuritySchemes: make(openapi3.SecuritySchemes),
		},
	}

	for _, server := range g.config.Servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{
			URL:         server.URL,
			Description: server.Description,
		})
	}

	errSchema, err := g.createSchemaFromType(reflect.TypeOf(typedhttp.ErrorResponse{}))
	if err != nil {
		return nil, err
	}
	spec.Components.Schemas["ErrorResponse"] = errSchema
	g.errSchema = &openapi3.SchemaRef{Ref: "#/components/schemas/ErrorResponse", Value: errSchema.Value}

	handlers := router.GetHandlers()
	for i := range handlers {
		if handlers[i].Metadata.Hidden {
			continue
		}
		if err := g.processHandler(spec, &handlers[i]); err != nil {
			return nil, fmt.Errorf("failed to process handler %s %s: %w",
				handlers[i].Method, handlers[i].Path, err)
		}
	}

	return spec, nil
}

// processHandler processes a single handler registration.
func (g *Generator) processHandler(spec *openapi3.T, reg *typedhttp.HandlerRegistration) error {
	pathItem := spec.Paths.Find(reg.Path)
	if pathItem == nil {
		pathItem = &openapi3.PathItem{}
		spec.Paths.Set(reg.Path, pathItem)
	}

	operation := &openapi3.Operation{
		Summary:     reg.Metadata.Summary,
		Description: reg.Metadata.Description,
		Tags:        reg.Metadata.Tags,
		Responses:   &openapi3.Responses{},
	}

	parameters, err := g.extractParameters(reg.RequestType)
	if err != nil {
		return fmt.Errorf("failed to extract parameters: %w", err)
	}
	operation.Parameters = parameters

	if g.needsRequestBody(reg.Method, reg.RequestType) {
		schema, err := g.createSchemaFromType(reg.RequestType)
		if err != nil {
			return fmt.Errorf("failed to create request body: %w", err)
		}
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(schema),
			},
		}
	}

	responseSchema, err := g.createSchemaFromType(reg.ResponseType)
	if err != nil {
		return fmt.Errorf("failed to create response schema: %w", err)
	}

	statusCode := http.StatusOK
	if reg.Method == http.MethodPost {
		statusCode = http.StatusCreated
	}
	setResponse(operation, statusCode, responseSchema)

	if len(parameters) > 0 || operation.RequestBody != nil {
		setResponse(operation, http.StatusBadRequest, g.errSchema)
	}
	if reg.Metadata.Secured {
		setResponse(operation, http.StatusUnauthorized, g.errSchema)
		operation.Security = g.securityFor(spec)
	}
	setResponse(operation, http.StatusInternalServerError, g.errSchema)

	pathItem.SetOperation(reg.Method, operation)

	return nil
}

func setResponse(op *openapi3.Operation, status int, schema *openapi3.SchemaRef) {
	description := http.StatusText(status)
	op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})
}

// securityFor registers the security schemes on first use and returns the
// alternatives accepted by a secured operation.
func (g *Generator) securityFor(spec *openapi3.T) *openapi3.SecurityRequirements {
	schemes := spec.Components.SecuritySchemes
	if _, ok := schemes[bearerScheme]; !ok {
		schemes[bearerScheme] = &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()}
	}

	reqs := openapi3.SecurityRequirements{{bearerScheme: []string{}}}

	if g.config.SessionCookie != "" {
		if _, ok := schemes[cookieScheme]; !ok {
			schemes[cookieScheme] = &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
				Type: "apiKey",
				In:   "cookie",
				Name: g.config.SessionCookie,
			}}
		}
		reqs = append(reqs, openapi3.SecurityRequirement{cookieScheme: []string{}})
	}

	return &reqs
}

// extractParameters extracts OpenAPI query parameters from request type.
func (g *Generator) extractParameters(requestType reflect.Type) (openapi3.Parameters, error) {
	var parameters openapi3.Parameters
	if requestType.Kind() != reflect.Struct {
		return parameters, nil
	}

	for i := 0; i < requestType.NumField(); i++ {
		field := requestType.Field(i)
		queryName := field.Tag.Get("query")
		if !field.IsExported() || queryName == "" {
			continue
		}

		param, err := g.createQueryParameter(&field, queryName)
		if err != nil {
			return nil, err
		}
		parameters = append(parameters, param)
	}

	return parameters, nil
}

// createQueryParameter creates a query parameter with default value handling.
func (g *Generator) createQueryParameter(field *reflect.StructField, queryName string) (*openapi3.ParameterRef, error) {
	schema, err := g.createSchemaFromType(field.Type)
	if err != nil {
		return nil, err
	}

	validate := field.Tag.Get("validate")
	g.applyValidationToSchema(schema, validate)

	if defaultValue := field.Tag.Get("default"); defaultValue != "" {
		schema.Value.Default = g.parseDefaultValue(defaultValue, field.Type)
	}

	param := openapi3.NewQueryParameter(queryName).WithSchema(schema.Value)
	param.Required = hasRule(validate, "required")

	return &openapi3.ParameterRef{Value: param}, nil
}

// needsRequestBody reports whether a request type is read from a JSON body.
func (g *Generator) needsRequestBody(method string, requestType reflect.Type) bool {
	if method == http.MethodGet || requestType.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < requestType.NumField(); i++ {
		if tag := requestType.Field(i).Tag.Get("json"); tag != "" && tag != "-" {
			return true
		}
	}

	return false
}

// createSchemaFromType creates OpenAPI schema from Go type.
func (g *Generator) createSchemaFromType(t reflect.Type) (*openapi3.SchemaRef, error) {
	schema := &openapi3.Schema{}

	switch {
	case t == timeType:
		schema.Type = &openapi3.Types{"string"}
		schema.Format = "date-time"
		return &openapi3.SchemaRef{Value: schema}, nil
	case t.Kind() == reflect.Struct && (t.Implements(textMarshalerType) || t.Implements(jsonMarshalerType)):
		// Value types with their own wire form, e.g. decimals.
		schema.Type = &openapi3.Types{"string"}
		return &openapi3.SchemaRef{Value: schema}, nil
	}

	switch t.Kind() {
	case reflect.String:
		schema.Type = &openapi3.Types{"string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		schema.Type = &openapi3.Types{"integer"}
	case reflect.Float32, reflect.Float64:
		schema.Type = &openapi3.Types{"number"}
	case reflect.Bool:
		schema.Type = &openapi3.Types{"boolean"}
	case reflect.Struct:
		schema.Type = &openapi3.Types{"object"}
		schema.Properties = make(openapi3.Schemas)

		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}

			jsonName := field.Tag.Get("json")
			if jsonName == "" || jsonName == "-" {
				continue
			}

			parts := strings.Split(jsonName, ",")
			fieldName := parts[0]
			omitempty := len(parts) > 1 && parts[1] == "omitempty"

			fieldSchema, err := g.createSchemaFromType(field.Type)
			if err != nil {
				return nil, err
			}
			g.applyValidationToSchema(fieldSchema, field.Tag.Get("validate"))

			schema.Properties[fieldName] = fieldSchema

			if !omitempty {
				schema.Required = append(schema.Required, fieldName)
			}
		}
		sort.Strings(schema.Required)
	case reflect.Slice, reflect.Array:
		schema.Type = &openapi3.Types{"array"}
		itemSchema, err := g.createSchemaFromType(t.Elem())
		if err != nil {
			return nil, err
		}
		schema.Items = itemSchema
	case reflect.Map:
		schema.Type = &openapi3.Types{"object"}
		hasAdditional := true
		schema.AdditionalProperties = openapi3.AdditionalProperties{Has: &hasAdditional}
	case reflect.Ptr:
		inner, err := g.createSchemaFromType(t.Elem())
		if err != nil {
			return nil, err
		}
		inner.Value.Nullable = true
		return inner, nil
	case reflect.Interface:
		schema.Type = &openapi3.Types{"object"}
	default:
		return nil, fmt.Errorf("unsupported type %s", t)
	}

	return &openapi3.SchemaRef{Value: schema}, nil
}

// applyValidationToSchema applies validation constraints to schema.
func (g *Generator) applyValidationToSchema(schemaRef *openapi3.SchemaRef, validate string) {
	if validate == "" || schemaRef.Value == nil || schemaRef.Ref != "" {
		return
	}

	for _, rule := range strings.Split(validate, ",") {
		g.applyValidationRule(schemaRef.Value, strings.TrimSpace(rule))
	}
}

// applyValidationRule applies a single validation rule to the schema.
func (g *Generator) applyValidationRule(schema *openapi3.Schema, rule string) {
	name, arg, _ := strings.Cut(rule, "=")

	switch name {
	case "min", "gte":
		g.applyMinValidation(schema, arg)
	case "max", "lte":
		g.applyMaxValidation(schema, arg)
	case "oneof":
		for _, v := range strings.Fields(arg) {
			schema.Enum = append(schema.Enum, v)
		}
	case "notblank", "required":
		if schema.Type.Is("string") && schema.MinLength == 0 {
			schema.MinLength = 1
		}
	case "email", "looseemail":
		schema.Format = "email"
	case "isodate":
		schema.Format = "date"
	case "uuid":
		schema.Format = "uuid"
	}
}

// applyMinValidation applies minimum value validation.
func (g *Generator) applyMinValidation(schema *openapi3.Schema, arg string) {
	minVal, err := strconv.Atoi(arg)
	if err != nil || schema.Type == nil {
		return
	}

	switch {
	case schema.Type.Is("string"):
		if minVal >= 0 {
			schema.MinLength = uint64(minVal)
		}
	case schema.Type.Is("integer"), schema.Type.Is("number"):
		minFloat := float64(minVal)
		schema.Min = &minFloat
	}
}

// applyMaxValidation applies maximum value validation.
func (g *Generator) applyMaxValidation(schema *openapi3.Schema, arg string) {
	maxVal, err := strconv.Atoi(arg)
	if err != nil || schema.Type == nil {
		return
	}

	switch {
	case schema.Type.Is("string"):
		if maxVal >= 0 {
			maxLen := uint64(maxVal)
			schema.MaxLength = &maxLen
		}
	case schema.Type.Is("integer"), schema.Type.Is("number"):
		maxFloat := float64(maxVal)
		schema.Max = &maxFloat
	}
}

// parseDefaultValue parses default value based on type.
func (g *Generator) parseDefaultValue(defaultValue string, t reflect.Type) interface{} {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
			return val
		}
	case reflect.Float32, reflect.Float64:
		if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
			return val
		}
	case reflect.Bool:
		if val, err := strconv.ParseBool(defaultValue); err == nil {
			return val
		}
	case reflect.Ptr:
		return g.parseDefaultValue(defaultValue, t.Elem())
	}

	return defaultValue
}

func hasRule(validate, rule string) bool {
	for _, r := range strings.Split(validate, ",") {
		if strings.TrimSpace(r) == rule {
			return true
		}
	}

	return false
}

// GenerateJSON generates JSON representation of OpenAPI spec.
func (g *Generator) GenerateJSON(spec *openapi3.T) ([]byte, error) {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OpenAPI spec to JSON: %w", err)
	}

	return data, nil
}

// GenerateYAML generates YAML representation of OpenAPI spec.
func (g *Generator) GenerateYAML(spec *openapi3.T) ([]byte, error) {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OpenAPI spec to YAML: %w", err)
	}

	return data, nil
}
