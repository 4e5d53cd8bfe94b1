package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelpascari/ordermanager/internal/export"
	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/session"
	"github.com/pavelpascari/ordermanager/internal/shell"
	"github.com/pavelpascari/ordermanager/internal/store"
	"github.com/pavelpascari/ordermanager/internal/store/memory"
	"github.com/pavelpascari/ordermanager/pkg/middleware/auth"
	"github.com/pavelpascari/ordermanager/pkg/openapi"
	"github.com/pavelpascari/ordermanager/pkg/testutil"
	httpassert "github.com/pavelpascari/ordermanager/pkg/testutil/assert"
	"github.com/pavelpascari/ordermanager/pkg/testutil/client"
)

const (
	staffEmail    = "staff@noblefit.example"
	staffPassword = "s3cret"
	cookieName    = "om_session"
)

var today = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return today }

// repo is a memory store whose calls can be made to fail.
type repo struct {
	*memory.Store

	mu         sync.Mutex
	failInsert bool
}

func (r *repo) setFailInsert(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failInsert = fail
}

func (r *repo) InsertOrder(ctx context.Context, row order.Row) error {
	r.mu.Lock()
	fail := r.failInsert
	r.mu.Unlock()

	if fail {
		return &store.Error{Op: store.OpInsert, Err: errors.New("connection reset")}
	}
	return r.Store.InsertOrder(ctx, row)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type harness struct {
	server *Server
	repo   *repo
	logs   *bytes.Buffer
}

func newHarness(t *testing.T, health Pinger, opts ...Option) *harness {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(staffPassword), bcrypt.MinCost)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	tokens := auth.NewJWTMiddleware([]byte("web-test-secret-0123456789"),
		auth.WithCookie(cookieName), auth.WithClock(fixedNow))
	provider := session.NewProvider(tokens,
		session.NewStaticAuthenticator(session.StaticUser{ID: "u1", Email: staffEmail, PasswordHash: string(hash)}),
		session.WithCookieName(cookieName), session.WithLogger(logger))

	r := &repo{Store: memory.New()}
	sh := shell.New(r, shell.WithClock(fixedNow), shell.WithLogger(logger))
	sh.Attach(provider)
	t.Cleanup(sh.Close)

	srv, err := New(Deps{
		Shell:    sh,
		Sessions: provider,
		Tokens:   tokens,
		Exporter: export.New(export.WithClock(fixedNow)),
		Logger:   logger,
		Health:   health,
	}, append([]Option{WithClock(fixedNow)}, opts...)...)
	require.NoError(t, err)

	return &harness{server: srv, repo: r, logs: logs}
}

func (h *harness) browser() *client.Client {
	return client.NewClient(h.server, client.WithCookieJar())
}

func signIn(t *testing.T, c *client.Client) {
	t.Helper()

	resp := testutil.MustExecute(t, c, testutil.PostForm("/signin", url.Values{
		"email":    {staffEmail},
		"password": {staffPassword},
	}))
	httpassert.Redirect(t, resp, "/")
}

func orderForm(id string) url.Values {
	return url.Values{
		"id":           {id},
		"customerName": {"Ada Lovelace"},
		"email":        {"ada@example.com"},
		"productName":  {"Performance Tee"},
		"size":         {"M"},
		"fitType":      {"Slim"},
		"quantity":     {"2"},
		"price":        {"25.50"},
	}
}

func TestServer_SignInPage(t *testing.T) {
	h := newHarness(t, nil)

	resp := testutil.MustExecute(t, h.browser(), testutil.GET("/"))

	httpassert.StatusOK(t, resp)
	httpassert.HeaderContains(t, resp, "Content-Type", "text/html")
	httpassert.BodyContains(t, resp,
		"Sign In",
		`action="/signin"`,
		"5/20/2024",
		"© 2024 Noble Fit. All rights reserved.",
	)
	httpassert.BodyNotContains(t, resp, "New Order Entry", "Sign Out")
}

func TestServer_SignIn(t *testing.T) {
	h := newHarness(t, nil)

	t.Run("wrong password", func(t *testing.T) {
		resp := testutil.MustExecute(t, h.browser(), testutil.PostForm("/signin", url.Values{
			"email":    {staffEmail},
			"password": {"nope"},
		}))

		httpassert.Status(t, resp, http.StatusUnauthorized)
		httpassert.BodyContains(t, resp, "Invalid email or password.", `value="staff@noblefit.example"`)
		assert.Nil(t, resp.Cookie(cookieName))
	})

	t.Run("success", func(t *testing.T) {
		c := h.browser()
		resp := testutil.MustExecute(t, c, testutil.PostForm("/signin", url.Values{
			"email":    {staffEmail},
			"password": {staffPassword},
		}))

		httpassert.Redirect(t, resp, "/")
		cookie := httpassert.Cookie(t, resp, cookieName)
		assert.True(t, cookie.HttpOnly)

		page := testutil.MustExecute(t, c, testutil.GET("/"))
		httpassert.StatusOK(t, page)
		httpassert.BodyContains(t, page,
			staffEmail,
			"Sign Out",
			"New Order Entry",
			"No orders have been submitted yet.",
			"Displaying 0 of 0 total orders",
			`value="2024-05-20"`,
		)
	})
}

func TestServer_SubmitOrder(t *testing.T) {
	h := newHarness(t, nil)
	c := h.browser()
	signIn(t, c)

	resp := testutil.MustExecute(t, c, testutil.PostForm("/orders", orderForm("NF-1001")))
	httpassert.Redirect(t, resp, "/")

	page := testutil.MustExecute(t, c, testutil.GET("/"))
	httpassert.BodyContains(t, page,
		"<td>NF-1001</td>",
		"<td>Ada Lovelace</td>",
		"<td>$25.50</td>",
		"<td>$51.00</td>",
		"Displaying 1 of 1 total orders",
	)
	httpassert.BodyNotContains(t, page, "No orders have been submitted yet.")

	rows, err := h.repo.ListOrders(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-05-20", rows[0].Date, "date defaults to today")
}

func TestServer_SubmitOrderValidation(t *testing.T) {
	h := newHarness(t, nil)
	c := h.browser()
	signIn(t, c)

	form := orderForm("")
	form.Set("email", "not-an-email")
	form.Set("price", "free")
	form.Set("quantity", "lots")

	resp := testutil.MustExecute(t, c, testutil.PostForm("/orders", form))

	httpassert.Status(t, resp, http.StatusUnprocessableEntity)
	httpassert.BodyContains(t, resp,
		"Order ID is required",
		"Email is invalid",
		"Price must be greater than 0",
		`value="Ada Lovelace"`,
		`value="not-an-email"`,
		`<option value="M" selected>`,
	)
	httpassert.BodyNotContains(t, resp, "Quantity must be at least 1")

	rows, err := h.repo.ListOrders(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestServer_SubmitOrderStoreFailure(t *testing.T) {
	h := newHarness(t, nil)
	c := h.browser()
	signIn(t, c)

	h.repo.setFailInsert(true)
	resp := testutil.MustExecute(t, c, testutil.PostForm("/orders", orderForm("NF-2001")))

	httpassert.StatusOK(t, resp)
	httpassert.BodyContains(t, resp, `value="NF-2001"`, "No orders have been submitted yet.")
	httpassert.BodyNotContains(t, resp, "connection reset")
	assert.Contains(t, h.logs.String(), `"msg":"repository call failed"`)
}

func TestServer_SubmitWithoutSession(t *testing.T) {
	h := newHarness(t, nil)

	resp := testutil.MustExecute(t, h.browser(), testutil.PostForm("/orders", orderForm("NF-1")))
	httpassert.Redirect(t, resp, "/")

	rows, err := h.repo.ListOrders(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestServer_Filter(t *testing.T) {
	h := newHarness(t, nil)
	c := h.browser()
	signIn(t, c)

	for _, id := range []string{"NF-1001", "NF-1002", "XL-9"} {
		testutil.MustExecute(t, c, testutil.PostForm("/orders", orderForm(id)))
	}

	resp := testutil.MustExecute(t, c, testutil.WithQueryParam(testutil.GET("/"), "orderId", "nf"))
	httpassert.BodyContains(t, resp,
		"Displaying 2 of 3 total orders",
		"<td>$102.00</td>",
		`href="/orders/export.csv?orderId=nf"`,
	)
	httpassert.BodyNotContains(t, resp, "<td>XL-9</td>")

	resp = testutil.MustExecute(t, c, testutil.WithQueryParam(testutil.GET("/"), "orderId", "zzz"))
	httpassert.BodyContains(t, resp, "Displaying 0 of 3 total orders", "<td>$0.00</td>")
	httpassert.BodyNotContains(t, resp, "No orders have been submitted yet.")
}

func TestServer_Export(t *testing.T) {
	h := newHarness(t, nil)
	c := h.browser()

	t.Run("requires session", func(t *testing.T) {
		resp := testutil.MustExecute(t, c, testutil.GET("/orders/export.csv"))
		httpassert.Redirect(t, resp, "/")
	})

	signIn(t, c)
	testutil.MustExecute(t, c, testutil.PostForm("/orders", orderForm("NF-1001")))
	testutil.MustExecute(t, c, testutil.PostForm("/orders", orderForm("XL-9")))

	t.Run("csv", func(t *testing.T) {
		resp := testutil.MustExecute(t, c, testutil.WithQueryParam(testutil.GET("/orders/export.csv"), "orderId", "NF"))

		httpassert.StatusOK(t, resp)
		httpassert.Header(t, resp, "Content-Type", "text/csv; charset=utf-8")
		httpassert.Header(t, resp, "Content-Disposition", "attachment; filename=orders_2024-05-20.csv")
		httpassert.BodyContains(t, resp,
			"Order ID,Date,Customer Name,Email,Phone,Product Name,Product Code,Size,Fit Type,Color,Qty,Price,Total Price\n",
			"NF-1001,2024-05-20,Ada Lovelace,ada@example.com,,Performance Tee,,M,Slim,,2,$25.50,$51.00\n",
		)
		httpassert.BodyNotContains(t, resp, "XL-9")
	})

	t.Run("xlsx", func(t *testing.T) {
		resp := testutil.MustExecute(t, c, testutil.GET("/orders/export.xlsx"))

		httpassert.StatusOK(t, resp)
		httpassert.Header(t, resp, "Content-Type", export.XLSX.ContentType())
		httpassert.Header(t, resp, "Content-Disposition", "attachment; filename=orders_2024-05-20.xlsx")
		assert.True(t, bytes.HasPrefix(resp.Raw, []byte("PK")), "xlsx is a zip archive")
	})
}

func TestServer_SignOut(t *testing.T) {
	h := newHarness(t, nil)
	c := h.browser()
	signIn(t, c)

	resp := testutil.MustExecute(t, c, testutil.POST("/signout", nil))
	httpassert.Redirect(t, resp, "/")
	assert.Equal(t, -1, httpassert.Cookie(t, resp, cookieName).MaxAge)

	page := testutil.MustExecute(t, c, testutil.GET("/"))
	httpassert.BodyContains(t, page, `action="/signin"`)
	httpassert.BodyNotContains(t, page, "New Order Entry")
}

func TestServer_StaleCookie(t *testing.T) {
	h := newHarness(t, nil)

	resp := testutil.MustExecute(t, h.browser(), testutil.WithCookie(testutil.GET("/"), cookieName, "stale"))

	httpassert.StatusOK(t, resp)
	httpassert.BodyContains(t, resp, `action="/signin"`)
	assert.Equal(t, -1, httpassert.Cookie(t, resp, cookieName).MaxAge)
}

func TestServer_SignInRateLimit(t *testing.T) {
	h := newHarness(t, nil, WithSignInLimit(1))
	c := h.browser()
	bad := testutil.WithRemoteAddr(testutil.PostForm("/signin", url.Values{"email": {staffEmail}, "password": {"x"}}), "198.51.100.7:5000")

	httpassert.Status(t, testutil.MustExecute(t, c, bad), http.StatusUnauthorized)

	resp := testutil.MustExecute(t, c, bad)
	httpassert.Status(t, resp, http.StatusTooManyRequests)
	httpassert.Header(t, resp, "Retry-After", "60")
	assert.Contains(t, h.logs.String(), "sign-in rate limited")

	other := testutil.WithRemoteAddr(testutil.PostForm("/signin", url.Values{"email": {staffEmail}, "password": {"x"}}), "198.51.100.8:5000")
	httpassert.Status(t, testutil.MustExecute(t, c, other), http.StatusUnauthorized)

	assert.Equal(t, 0, h.server.PruneLimits(), "buckets refill only after a minute")
}

func TestServer_HealthAndDocs(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := newHarness(t, pinger{})
		resp := testutil.MustExecute(t, h.browser(), testutil.GET("/healthz"))

		httpassert.StatusOK(t, resp)
		httpassert.JSONField(t, resp, "status", "ok")
	})

	t.Run("store down", func(t *testing.T) {
		h := newHarness(t, pinger{err: errors.New("dial tcp: refused")})
		resp := testutil.MustExecute(t, h.browser(), testutil.GET("/healthz"))

		httpassert.Status(t, resp, http.StatusServiceUnavailable)
		httpassert.JSONField(t, resp, "status", "degraded")
	})

	t.Run("openapi", func(t *testing.T) {
		h := newHarness(t, nil)
		resp := testutil.MustExecute(t, h.browser(), testutil.GET("/openapi.json"))

		httpassert.StatusOK(t, resp)
		httpassert.JSONContentType(t, resp)

		var doc struct {
			Info  map[string]interface{}     `json:"info"`
			Paths map[string]json.RawMessage `json:"paths"`
		}
		require.NoError(t, json.Unmarshal(resp.Raw, &doc))
		assert.Equal(t, "Noble Fit Order Manager API", doc.Info["title"])
		assert.Contains(t, doc.Paths, "/api/orders")
		assert.Contains(t, doc.Paths, "/api/token")
		assert.NotContains(t, doc.Paths, "/signin")
		assert.NotContains(t, doc.Paths, "/healthz")
		assert.Equal(t, resp.Raw, h.server.APIDocument())
	})
}

func TestServer_APIInfo(t *testing.T) {
	h := newHarness(t, nil, WithAPIInfo(openapi.Info{Title: "Orders", Version: "2.1.0"}))

	var doc struct {
		Info map[string]interface{} `json:"info"`
	}
	require.NoError(t, json.Unmarshal(h.server.APIDocument(), &doc))
	assert.Equal(t, "Orders", doc.Info["title"])
	assert.Equal(t, "2.1.0", doc.Info["version"])

	yml, err := h.server.APIDocumentYAML()
	require.NoError(t, err)
	assert.Contains(t, string(yml), "title: Orders")
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
