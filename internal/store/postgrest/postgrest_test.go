package postgrest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/store"
	"github.com/pavelpascari/ordermanager/internal/store/postgrest"
)

func TestClient_ListOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/orders", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{
			"id": "8f0e", "order_id": "ORD-1", "date": "2024-02-01",
			"customer_name": "Jane", "email": "jane@example.com",
			"phone": null, "product_name": "Tee", "product_code": null,
			"size": "M", "fit_type": null, "color": null,
			"quantity": "3", "price": 12.5,
			"created_at": "2024-02-01T10:00:00Z", "user_id": "u1"
		}]`)
	}))
	defer srv.Close()

	c := postgrest.New(srv.URL+"/", "anon-key")
	ctx := postgrest.WithAccessToken(context.Background(), "user-token")

	rows, err := c.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	o := order.FromRow(rows[0])
	assert.Equal(t, "ORD-1", o.ID)
	assert.Equal(t, "Tee", o.ProductName)
	assert.Empty(t, o.Phone)
	assert.Equal(t, order.SizeM, o.Size)
	assert.Equal(t, 3, o.Quantity)
	assert.True(t, decimal.RequireFromString("12.5").Equal(o.Price))
}

func TestClient_InsertOrder(t *testing.T) {
	var got map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := postgrest.New(srv.URL, "service-key")
	o := order.Order{
		ID: "ORD-7", Date: "2024-02-01", CustomerName: "Jane",
		Email: "jane@example.com", Quantity: 2, Price: decimal.NewFromInt(9),
	}

	require.NoError(t, c.InsertOrder(context.Background(), order.ToRow(o, "u1")))

	assert.Equal(t, "ORD-7", got["order_id"])
	assert.Equal(t, "Jane", got["customer_name"])
	assert.Equal(t, "u1", got["user_id"])
	assert.Equal(t, float64(2), got["quantity"])
	assert.NotContains(t, got, "id")
	assert.NotContains(t, got, "created_at")
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"code":"42501","message":"new row violates row-level security policy"}`)
	}))
	defer srv.Close()

	err := postgrest.New(srv.URL, "k").InsertOrder(context.Background(), order.Row{UserID: "u1"})

	var serr *store.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, store.OpInsert, serr.Op)

	var apiErr *postgrest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "42501", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "row-level security")
}

func TestClient_RequiresOwner(t *testing.T) {
	c := postgrest.New("http://127.0.0.1:0", "k")

	_, err := c.ListOrders(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrMissingOwner)
}

func TestClient_Options(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Timeout = 2 * time.Second
	c := postgrest.New(srv.URL, "k", postgrest.WithTable("orders_archive"), postgrest.WithHTTPClient(hc))

	rows, err := c.ListOrders(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []string{"/rest/v1/orders_archive"}, paths)
}
