package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/hash"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/tokens"
)

type testServer struct {
	e        *echo.Echo
	repo     *repo.GormRepo
	tokens   *tokens.Service
	sessions *service.SessionService
	guests   *cart.MemoryStore
	events   *events.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	gdb := dbtest.New(t)
	r := repo.New(gdb)
	ts := tokens.NewService([]byte("access-secret"), []byte("refresh-secret"), 15*time.Minute, 24*time.Hour)
	rec := &events.Recorder{}
	m := metrics.New()
	rc := cart.NewReconciler(cart.DefaultPricing())
	guests := cart.NewMemoryStore(0)

	sessions := &service.SessionService{Repo: r, Tokens: ts, Hasher: hash.New(bcrypt.MinCost), Events: rec, Metrics: m}
	carts := &cart.Service{Reconciler: rc, Accounts: &cart.AccountStore{Repo: r}, Guests: guests, Products: r, Events: rec, Metrics: m}

	e := echo.New()
	e.Use(m.Middleware())
	Register(e, &Deps{
		DB:      gdb,
		Guard:   auth.NewGuard(ts),
		Metrics: m,
		Auth:    &AuthHTTP{Sessions: sessions, Carts: carts},
		Cart:    &CartHTTP{Carts: carts},
		Catalog: &CatalogHTTP{Catalog: &service.CatalogService{Repo: r, Events: rec}},
		Orders:  &OrdersHTTP{Orders: &service.OrderService{Repo: r, Reconciler: rc, Events: rec, Metrics: m}},
		Admin:   &AdminHTTP{Sessions: sessions},
	})

	return &testServer{e: e, repo: r, tokens: ts, sessions: sessions, guests: guests, events: rec}
}

type reqOpt func(*http.Request)

func withBearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+tok) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withCookie(name, value string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()

	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type sessionBody struct {
	Account      models.Account `json:"account"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

func (s *testServer) register(t *testing.T, email string, opts ...reqOpt) sessionBody {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", echo.Map{"name": "Jane Doe", "email": email, "password": "secret1"}, opts...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionBody](t, rec)
}

// admin returns an access token for a freshly promoted admin account.
func (s *testServer) admin(t *testing.T) string {
	t.Helper()
	sess := s.register(t, "admin@example.com")
	_, err := s.sessions.SetRole(context.Background(), sess.Account.ID, models.RoleAdmin)
	require.NoError(t, err)
	tok, _, err := s.tokens.IssueAccess(sess.Account.ID, models.RoleAdmin)
	require.NoError(t, err)
	return tok
}

func (s *testServer) product(t *testing.T, name string, price float64) models.Product {
	t.Helper()
	p := models.Product{Name: name, Description: "a product for tests", Price: price, InStock: true}
	require.NoError(t, s.repo.CreateProduct(context.Background(), &p))
	return p
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", nil).Code)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_http_requests_total")
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	s := newTestServer(t)

	reg := s.register(t, "jane@example.com")
	assert.Equal(t, "jane@example.com", reg.Account.Email)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotContains(t, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, withBearer(reg.AccessToken)).Body.String(), "passwordHash")

	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", echo.Map{"email": "JANE@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[sessionBody](t, rec)
	require.NotNil(t, cookieNamed(rec, auth.AccessCookie))
	require.NotNil(t, cookieNamed(rec, auth.RefreshCookie))

	claims, err := s.tokens.Verify(login.AccessToken, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, claims.AccountID)

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, withCookie(auth.AccessCookie, login.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[struct {
		Account models.Account `json:"account"`
	}](t, rec)
	assert.Equal(t, reg.Account.ID, me.Account.ID)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/auth/me", nil).Code)
}

func TestAuth_Errors(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "jane@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", echo.Map{"name": "Other", "email": "jane@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register", echo.Map{"name": "J", "email": "bad", "password": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[struct {
		Message string `json:"message"`
		Errors  []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}](t, rec)
	assert.Equal(t, "validation failed", body.Message)
	assert.Len(t, body.Errors, 3)

	wrongPw := s.do(t, http.MethodPost, "/api/v1/auth/login", echo.Map{"email": "jane@example.com", "password": "nope-nope"})
	noUser := s.do(t, http.MethodPost, "/api/v1/auth/login", echo.Map{"email": "ghost@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, http.StatusUnauthorized, noUser.Code)
	assert.JSONEq(t, wrongPw.Body.String(), noUser.Body.String())
}

func TestAuth_ExpiredAccessToken(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "jane@example.com")

	old := *s.tokens
	old.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := old.IssueAccess(reg.Account.ID, models.RoleUser)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, withBearer(expired)).Code)
}

func TestAuth_RefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "jane@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/auth/refresh", echo.Map{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decode[map[string]string](t, rec)
	assert.NotEmpty(t, pair["accessToken"])

	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, withCookie(auth.RefreshCookie, pair["refreshToken"]))
	assert.Equal(t, http.StatusOK, rec.Code, "cookie works too")

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/auth/refresh", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/v1/auth/refresh", echo.Map{"refreshToken": "junk"}).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, withCookie(auth.RefreshCookie, reg.RefreshToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, cookieNamed(rec, auth.AccessCookie))
	assert.Equal(t, -1, cookieNamed(rec, auth.AccessCookie).MaxAge)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/refresh", echo.Map{"refreshToken": reg.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "logged-out token is revoked")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/auth/logout", nil).Code, "logout without a token still succeeds")
}

func TestAuth_ProfileAndPassword(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "jane@example.com")

	rec := s.do(t, http.MethodPatch, "/api/v1/auth/me", echo.Map{"phone": "555-0100"}, withBearer(reg.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "555-0100")

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password", echo.Map{"currentPassword": "wrong", "newPassword": "another1"}, withBearer(reg.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/password", echo.Map{"currentPassword": "secret1", "newPassword": "another1"}, withBearer(reg.AccessToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", echo.Map{"email": "jane@example.com", "password": "another1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCart_GuestFlowMergedAtRegister(t *testing.T) {
	s := newTestServer(t)
	pricey := s.product(t, "Espresso Machine", 150)
	cheap := s.product(t, "Coffee Filter", 10)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", echo.Map{"productId": pricey.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gid := rec.Header().Get(GuestCartHeader)
	require.NotEmpty(t, gid)
	require.NotNil(t, cookieNamed(rec, GuestCartCookie))

	c := decode[models.Cart](t, rec)
	assert.InDelta(t, 150, c.Subtotal, 1e-9)
	assert.InDelta(t, 15, c.Tax, 1e-9)
	assert.InDelta(t, 0, c.Shipping, 1e-9)
	assert.InDelta(t, 165, c.Total, 1e-9)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/items", echo.Map{"productId": cheap.ID, "quantity": 1}, withHeader(GuestCartHeader, gid))
	require.Equal(t, http.StatusOK, rec.Code)
	c = decode[models.Cart](t, rec)
	assert.Equal(t, gid, c.ID)
	assert.InDelta(t, 160, c.Subtotal, 1e-9)
	assert.InDelta(t, 0, c.Shipping, 1e-9)

	reg := s.register(t, "jane@example.com", withCookie(GuestCartCookie, gid))

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil, withBearer(reg.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	c = decode[models.Cart](t, rec)
	assert.Equal(t, reg.Account.ID, c.UserID)
	assert.Len(t, c.Items, 2)

	_, err := s.guests.Load(context.Background(), gid)
	assert.ErrorIs(t, err, cart.ErrCartNotFound, "guest cart is discarded after merge")
}

func TestCart_AccountMutations(t *testing.T) {
	s := newTestServer(t)
	mug := s.product(t, "Mug", 25)
	reg := s.register(t, "jane@example.com")
	bearer := withBearer(reg.AccessToken)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", echo.Map{"productId": mug.ID, "quantity": 2}, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[models.Cart](t, rec)
	require.Len(t, c.Items, 1)
	assert.InDelta(t, 65, c.Total, 1e-9)
	itemID := c.Items[0].ID

	rec = s.do(t, http.MethodPatch, "/api/v1/cart/items/"+itemID, echo.Map{"quantity": 4}, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[models.Cart](t, rec).Items[0].Quantity)

	rec = s.do(t, http.MethodPatch, "/api/v1/cart/items/"+itemID, echo.Map{"quantity": 0}, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.Cart](t, rec).Items)

	for _, q := range []int{0, -1, math.MaxInt, cart.MaxLineQuantity + 1} {
		rec = s.do(t, http.MethodPost, "/api/v1/cart/items", echo.Map{"productId": mug.ID, "quantity": q}, bearer)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "quantity %d", q)
	}
	rec = s.do(t, http.MethodPatch, "/api/v1/cart/items/"+itemID, echo.Map{"quantity": math.MaxInt}, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/v1/cart/items", echo.Map{"productId": "missing", "quantity": 1}, bearer).Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", echo.Map{"productId": mug.ID}, bearer).Code)
	rec = s.do(t, http.MethodDelete, "/api/v1/cart", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	c = decode[models.Cart](t, rec)
	assert.Empty(t, c.Items)
	assert.Zero(t, c.Total)
}

func TestOrders_Checkout(t *testing.T) {
	s := newTestServer(t)
	mug := s.product(t, "Mug", 40)
	reg := s.register(t, "jane@example.com")
	bearer := withBearer(reg.AccessToken)
	addr := echo.Map{"street": "1 Main St", "city": "Springfield", "zipCode": "12345", "country": "US"}

	rec := s.do(t, http.MethodPost, "/api/v1/orders", echo.Map{"shippingAddress": addr}, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/cart/items", echo.Map{"productId": mug.ID, "quantity": 3}, bearer).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/orders", echo.Map{"shippingAddress": addr, "paymentMethod": "card"}, bearer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		Order models.Order `json:"order"`
	}](t, rec).Order
	assert.InDelta(t, 132, created.Total, 1e-9)
	assert.True(t, strings.HasPrefix(created.OrderNumber, "ORD-"))

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil, bearer)
	assert.Empty(t, decode[models.Cart](t, rec).Items)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/"+created.ID, nil, bearer)
	assert.Equal(t, http.StatusOK, rec.Code)

	other := s.register(t, "other@example.com")
	rec = s.do(t, http.MethodGet, "/api/v1/orders/"+created.ID, nil, withBearer(other.AccessToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/orders", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[service.OrderList](t, rec).Orders, 1)

	adminTok := s.admin(t)
	rec = s.do(t, http.MethodPatch, "/api/v1/admin/orders/"+created.ID+"/status", echo.Map{"status": "shipped", "trackingNumber": "TRK1"}, withBearer(adminTok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TRK1")
}

func TestAdmin_GuardAndCatalog(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "jane@example.com")
	adminTok := s.admin(t)
	asAdmin := withBearer(adminTok)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/admin/users", nil).Code)
	rec := s.do(t, http.MethodGet, "/api/v1/admin/users", nil, withBearer(user.AccessToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin access required")

	rec = s.do(t, http.MethodGet, "/api/v1/admin/users", nil, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[service.UserList](t, rec).Users, 2)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/categories", echo.Map{"name": "Kitchen"}, asAdmin)
	require.Equal(t, http.StatusCreated, rec.Code)
	cat := decode[struct {
		Category models.Category `json:"category"`
	}](t, rec).Category
	assert.Equal(t, "kitchen", cat.Slug)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/v1/admin/categories", echo.Map{"name": "Kitchen"}, asAdmin).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/products", echo.Map{
		"name": "Chef Knife", "description": "Sharp and balanced", "price": 89.5, "categoryId": cat.ID,
	}, asAdmin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[models.Product](t, rec)

	rec = s.do(t, http.MethodGet, "/api/v1/products?category="+cat.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[service.ProductList](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, p.ID, list.Data[0].ID)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/products?minPrice=abc", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/products/search?q=knife", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/products/featured", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/categories", nil).Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/admin/products/"+p.ID, echo.Map{"price": 79}, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 79, decode[models.Product](t, rec).Price, 1e-9)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/admin/products/"+p.ID, nil, asAdmin).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/products/"+p.ID, nil).Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/admin/users/"+user.Account.ID+"/role", echo.Map{"role": "root"}, asAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPatch, "/api/v1/admin/users/"+user.Account.ID+"/status", echo.Map{"isActive": false}, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", echo.Map{"email": "jane@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "deactivated")
}
