package openapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelpascari/ordermanager/pkg/typedhttp"
)

type listItemsRequest struct {
	Search string `query:"search"`
	Limit  int    `query:"limit" default:"20" validate:"min=1,max=100"`
}

type item struct {
	SKU       string          `json:"sku" validate:"notblank"`
	Size      string          `json:"size,omitempty" validate:"omitempty,oneof=S M L"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	Price     decimal.Decimal `json:"price"`
	Contact   string          `json:"contact" validate:"looseemail"`
	Date      string          `json:"date,omitempty" validate:"omitempty,isodate"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
	secret    string
}

type listItemsResponse struct {
	Items []item `json:"items"`
	Count int    `json:"count"`
}

type noop[Req, Resp any] struct{}

func (noop[Req, Resp]) Handle(context.Context, Req) (Resp, error) {
	var zero Resp
	return zero, nil
}

func newTestRouter() *typedhttp.TypedRouter {
	router := typedhttp.NewRouter()
	typedhttp.GET(router, "/items", noop[listItemsRequest, listItemsResponse]{},
		typedhttp.WithSummary("List items"),
		typedhttp.WithTags("items"),
		typedhttp.WithSecured(),
	)
	typedhttp.POST(router, "/items", noop[item, item]{},
		typedhttp.WithSummary("Create item"),
		typedhttp.WithDescription("Stores a single item."),
	)
	typedhttp.GET(router, "/", noop[struct{}, string]{}, typedhttp.WithHidden())

	return router
}

func generate(t *testing.T, config *Config) *openapi3.T {
	t.Helper()

	spec, err := NewGenerator(config).Generate(newTestRouter())
	require.NoError(t, err)

	return spec
}

func TestGenerator_Document(t *testing.T) {
	spec := generate(t, &Config{
		Info:    Info{Title: "Items", Version: "1.0.0", Description: "test"},
		Servers: []Server{{URL: "http://localhost:8080"}},
	})

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "Items", spec.Info.Title)
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "http://localhost:8080", spec.Servers[0].URL)

	assert.NotNil(t, spec.Paths.Find("/items"))
	assert.Nil(t, spec.Paths.Find("/"), "hidden routes are skipped")
	assert.Contains(t, spec.Components.Schemas, "ErrorResponse")
}

func TestGenerator_QueryParameters(t *testing.T) {
	op := generate(t, &Config{Info: Info{Title: "t", Version: "1"}}).Paths.Find("/items").Get
	require.NotNil(t, op)

	assert.Equal(t, "List items", op.Summary)
	assert.Equal(t, []string{"items"}, op.Tags)
	assert.Nil(t, op.RequestBody)
	require.Len(t, op.Parameters, 2)

	search := op.Parameters.GetByInAndName("query", "search")
	require.NotNil(t, search)
	assert.False(t, search.Required)
	assert.True(t, search.Schema.Value.Type.Is("string"))

	limit := op.Parameters.GetByInAndName("query", "limit")
	require.NotNil(t, limit)
	assert.True(t, limit.Schema.Value.Type.Is("integer"))
	assert.Equal(t, int64(20), limit.Schema.Value.Default)
	require.NotNil(t, limit.Schema.Value.Min)
	assert.Equal(t, float64(1), *limit.Schema.Value.Min)
	require.NotNil(t, limit.Schema.Value.Max)
	assert.Equal(t, float64(100), *limit.Schema.Value.Max)
}

func TestGenerator_RequestBodySchema(t *testing.T) {
	op := generate(t, &Config{Info: Info{Title: "t", Version: "1"}}).Paths.Find("/items").Post
	require.NotNil(t, op)
	require.NotNil(t, op.RequestBody)

	assert.Equal(t, "Stores a single item.", op.Description)
	schema := op.RequestBody.Value.Content.Get("application/json").Schema.Value
	require.NotNil(t, schema)

	assert.Equal(t, []string{"contact", "price", "quantity", "sku"}, schema.Required)
	assert.NotContains(t, schema.Properties, "secret")

	props := schema.Properties
	assert.Equal(t, uint64(1), props["sku"].Value.MinLength)
	assert.Equal(t, []interface{}{"S", "M", "L"}, props["size"].Value.Enum)
	assert.Equal(t, float64(1), *props["quantity"].Value.Min)
	assert.True(t, props["price"].Value.Type.Is("string"))
	assert.Equal(t, "email", props["contact"].Value.Format)
	assert.Equal(t, "date", props["date"].Value.Format)
	assert.Equal(t, "date-time", props["createdAt"].Value.Format)
	assert.True(t, props["createdAt"].Value.Nullable)

	assert.NotNil(t, op.Responses.Value("201"))
	assert.NotNil(t, op.Responses.Value("400"))
	assert.Nil(t, op.Responses.Value("401"))
	assert.Nil(t, op.Security)
}

func TestGenerator_Security(t *testing.T) {
	t.Run("bearer only", func(t *testing.T) {
		spec := generate(t, &Config{Info: Info{Title: "t", Version: "1"}})
		op := spec.Paths.Find("/items").Get

		require.NotNil(t, op.Security)
		assert.Len(t, *op.Security, 1)
		assert.NotNil(t, op.Responses.Value("401"))
		assert.Contains(t, spec.Components.SecuritySchemes, "bearerAuth")
		assert.NotContains(t, spec.Components.SecuritySchemes, "cookieAuth")
	})

	t.Run("bearer or cookie", func(t *testing.T) {
		spec := generate(t, &Config{Info: Info{Title: "t", Version: "1"}, SessionCookie: "om_session"})
		op := spec.Paths.Find("/items").Get

		require.NotNil(t, op.Security)
		assert.Len(t, *op.Security, 2)

		cookie := spec.Components.SecuritySchemes["cookieAuth"]
		require.NotNil(t, cookie)
		assert.Equal(t, "cookie", cookie.Value.In)
		assert.Equal(t, "om_session", cookie.Value.Name)
	})
}

func TestGenerator_Output(t *testing.T) {
	g := NewGenerator(&Config{Info: Info{Title: "Items", Version: "1"}})
	spec, err := g.Generate(newTestRouter())
	require.NoError(t, err)

	raw, err := g.GenerateJSON(spec)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])

	yml, err := g.GenerateYAML(spec)
	require.NoError(t, err)
	assert.Contains(t, string(yml), "title: Items")
}

func TestHasRule(t *testing.T) {
	assert.True(t, hasRule("omitempty, required", "required"))
	assert.False(t, hasRule("requiredif", "required"))
	assert.False(t, hasRule("", "required"))
}
