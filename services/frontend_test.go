package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/norun9/microservices-demo-ambient/storefront/cart"
	"github.com/norun9/microservices-demo-ambient/storefront/cartstore"
	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/norun9/microservices-demo-ambient/storefront/mockserver"
	"github.com/norun9/microservices-demo-ambient/storefront/views"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"
)

type testFrontend struct {
	t        *testing.T
	api      *mockserver.Server
	store    *cartstore.LocalCartStore
	sessions *cart.Sessions
	fe       *FrontendServer
	handler  http.Handler
	cookie   *http.Cookie
}

func newTestFrontend(t *testing.T) *testFrontend {
	t.Helper()
	return newTestFrontendWithMeter(t, noop.NewMeterProvider().Meter(serviceName))
}

func newTestFrontendWithMeter(t *testing.T, meter metric.Meter) *testFrontend {
	t.Helper()

	log := logrus.New()
	log.Out = io.Discard

	api, err := mockserver.New(mockserver.Options{Environment: mockserver.EnvironmentTest, Seed: 3})
	require.NoError(t, err)
	t.Cleanup(api.Shutdown)

	store := cartstore.NewLocalCartStore(log)
	client := catalog.NewClient(api.Start(), nil, time.Second)
	sessions := cart.NewSessions(store, log)
	fe, err := newFrontendServer(client, sessions, store, log, meter)
	require.NoError(t, err)

	return &testFrontend{t: t, api: api, store: store, sessions: sessions, fe: fe, handler: fe.Handler()}
}

func (tf *testFrontend) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	tf.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if tf.cookie != nil {
		req.AddCookie(tf.cookie)
	}

	rec := httptest.NewRecorder()
	tf.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieSessionID {
			tf.cookie = c
		}
	}
	return rec
}

func (tf *testFrontend) cartState() cart.State {
	tf.t.Helper()
	rec := tf.do(http.MethodGet, "/api/cart", nil)
	require.Equal(tf.t, http.StatusOK, rec.Code)
	var state cart.State
	require.NoError(tf.t, json.NewDecoder(rec.Body).Decode(&state))
	return state
}

func (tf *testFrontend) addProduct(p catalog.Product) {
	tf.t.Helper()
	rec := tf.do(http.MethodPost, "/cart/products", url.Values{"product_id": {p.ID}})
	require.Equal(tf.t, http.StatusSeeOther, rec.Code)
}

func countCards(body string) int {
	return strings.Count(body, `data-testid="product-card"`)
}

func TestHomeRendersProductCards(t *testing.T) {
	tf := newTestFrontend(t)
	tf.api.CreateList(10)

	rec := tf.do(http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, countCards(rec.Body.String()))
	assert.Equal(t, 1, tf.api.Requests())
	assert.NotNil(t, tf.cookie, "session cookie is assigned")
}

func TestHomeShowsErrorWhenAPIFails(t *testing.T) {
	tf := newTestFrontend(t)
	tf.api.CreateList(10)
	tf.api.SetFailing(true)

	rec := tf.do(http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), views.LoadErrorMessage)
	assert.Equal(t, 0, countCards(rec.Body.String()))
}

func TestHomeFiltersBySearchTerm(t *testing.T) {
	tf := newTestFrontend(t)
	tf.api.CreateList(10)
	tf.api.Create(catalog.Product{Title: "Meu relógio amado"})
	tf.api.Create(catalog.Product{Title: "Meu outro relógio estimado"})

	rec := tf.do(http.MethodGet, "/?search="+url.QueryEscape("relógio"), nil)
	assert.Equal(t, 2, countCards(rec.Body.String()))

	rec = tf.do(http.MethodGet, "/?search=", nil)
	assert.Equal(t, 12, countCards(rec.Body.String()))
	assert.Equal(t, 2, tf.api.Requests(), "every page mount fetches the list")
}

func TestAddProductIsIdempotent(t *testing.T) {
	tf := newTestFrontend(t)
	p := tf.api.Create(catalog.Product{Title: "Lindo relógio"})

	tf.addProduct(p)
	tf.addProduct(p)

	state := tf.cartState()
	require.Len(t, state.Items, 1)
	assert.Equal(t, p.ID, state.Items[0].ID)
	assert.Equal(t, "Lindo relógio", state.Items[0].Title)
}

func TestCartsAreScopedToSessions(t *testing.T) {
	tf := newTestFrontend(t)
	tf.addProduct(tf.api.Create(catalog.Product{}))

	tf.cookie = nil
	assert.Empty(t, tf.cartState().Items)
}

func TestAddProductRequiresID(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(http.MethodPost, "/cart/products", url.Values{"title": {"x"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "product_id is required")
}

func TestAddProductStoresCatalogProduct(t *testing.T) {
	tf := newTestFrontend(t)
	p := tf.api.Create(catalog.Product{Title: "Lindo relógio", Price: decimal.RequireFromString("22.335")})

	rec := tf.do(http.MethodPost, "/cart/products", url.Values{
		"product_id": {p.ID},
		"title":      {"forged"},
		"price":      {"0.01"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	items := tf.cartState().Items
	require.Len(t, items, 1)
	assert.Equal(t, "Lindo relógio", items[0].Title)
	assert.True(t, p.Price.Equal(items[0].Price), "price %s kept exactly, got %s", p.Price, items[0].Price)
}

func TestAddProductRejectsUnknownID(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(http.MethodPost, "/cart/products", url.Values{"product_id": {"999"}, "title": {"forged"}})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, tf.cartState().Items)
}

func TestAddProductReportsAPIFailure(t *testing.T) {
	tf := newTestFrontend(t)
	p := tf.api.Create(catalog.Product{})
	tf.api.SetFailing(true)

	rec := tf.do(http.MethodPost, "/cart/products", url.Values{"product_id": {p.ID}})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, tf.cartState().Items)
}

func TestOpenCloseCart(t *testing.T) {
	tf := newTestFrontend(t)
	tf.addProduct(tf.api.Create(catalog.Product{Title: "Lindo relógio"}))

	require.Equal(t, http.StatusSeeOther, tf.do(http.MethodPost, "/cart/open", url.Values{}).Code)
	assert.True(t, tf.cartState().Open)

	body := tf.do(http.MethodGet, "/", nil).Body.String()
	assert.Contains(t, body, `data-testid="shopping-cart"`)
	assert.Contains(t, body, `<span data-testid="quantity">1</span>`)

	tf.do(http.MethodPost, "/cart/close", url.Values{})
	assert.False(t, tf.cartState().Open)
}

func TestQuantityStepper(t *testing.T) {
	tf := newTestFrontend(t)
	p := tf.api.Create(catalog.Product{Title: "Lindo relógio"})
	tf.addProduct(p)
	tf.do(http.MethodPost, "/cart/open", url.Values{})

	for i := 0; i < 3; i++ {
		tf.do(http.MethodPost, "/cart/products/"+p.ID+"/quantity/+", url.Values{})
	}
	assert.Contains(t, tf.do(http.MethodGet, "/", nil).Body.String(), `<span data-testid="quantity">4</span>`)

	for i := 0; i < 6; i++ {
		tf.do(http.MethodPost, "/cart/products/"+p.ID+"/quantity/-", url.Values{})
	}
	assert.Contains(t, tf.do(http.MethodGet, "/", nil).Body.String(), `<span data-testid="quantity">0</span>`)

	// quantities are display-only
	assert.Len(t, tf.cartState().Items, 1)

	// reopening remounts the panel
	tf.do(http.MethodPost, "/cart/open", url.Values{})
	assert.Contains(t, tf.do(http.MethodGet, "/", nil).Body.String(), `<span data-testid="quantity">1</span>`)
}

func TestQuantityRejectsUnknownOperation(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(http.MethodPost, "/cart/products/1/quantity/x", url.Values{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveProduct(t *testing.T) {
	tf := newTestFrontend(t)
	a := tf.api.Create(catalog.Product{})
	b := tf.api.Create(catalog.Product{})
	tf.addProduct(a)
	tf.addProduct(b)

	tf.do(http.MethodPost, "/cart/products/"+a.ID+"/remove", url.Values{})
	state := tf.cartState()
	require.Len(t, state.Items, 1)
	assert.Equal(t, b.ID, state.Items[0].ID)

	tf.do(http.MethodPost, "/cart/products/missing/remove", url.Values{})
	assert.Len(t, tf.cartState().Items, 1)
}

func TestClearCart(t *testing.T) {
	tf := newTestFrontend(t)
	tf.addProduct(tf.api.Create(catalog.Product{}))
	tf.do(http.MethodPost, "/cart/open", url.Values{})

	tf.do(http.MethodPost, "/cart/clear", url.Values{})

	state := tf.cartState()
	assert.False(t, state.Open)
	assert.Empty(t, state.Items)
}

func TestCartIsPersisted(t *testing.T) {
	tf := newTestFrontend(t)
	p := tf.api.Create(catalog.Product{})
	tf.addProduct(p)
	tf.sessions.Flush()

	stored, err := tf.store.Load(context.Background(), tf.cookie.Value)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, p.ID, stored.Items[0].ID)
}

func TestRedirectBack(t *testing.T) {
	tf := newTestFrontend(t)
	p := tf.api.Create(catalog.Product{})

	post := func(referer string) string {
		req := httptest.NewRequest(http.MethodPost, "/cart/products/"+p.ID+"/remove", nil)
		if referer != "" {
			req.Header.Set("Referer", referer)
		}
		rec := httptest.NewRecorder()
		tf.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		return rec.Header().Get("Location")
	}

	assert.Equal(t, "/", post(""))
	assert.Equal(t, "/?search=rel", post("http://example.com/?search=rel"))
	assert.Equal(t, "/", post("http://evil.test/phish"))
}

func TestHealth(t *testing.T) {
	tf := newTestFrontend(t)

	rec := tf.do(http.MethodGet, "/_healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

type downStore struct{}

func (downStore) Ping(context.Context) bool { return false }

func TestHealthReportsStoreDown(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(downStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func (tf *testFrontend) panelCount() int {
	tf.fe.panelsMu.Lock()
	defer tf.fe.panelsMu.Unlock()
	return len(tf.fe.panels)
}

func TestBrowsingDoesNotHoldSessions(t *testing.T) {
	tf := newTestFrontend(t)
	tf.api.CreateList(3)

	for i := 0; i < 50; i++ {
		tf.cookie = nil
		require.Equal(t, http.StatusOK, tf.do(http.MethodGet, "/", nil).Code)
		tf.cartState()
	}

	assert.Equal(t, 0, tf.sessions.Len())
	assert.Equal(t, 0, tf.panelCount())
}

func TestSweepReleasesIdleSessions(t *testing.T) {
	tf := newTestFrontend(t)
	p := tf.api.Create(catalog.Product{Title: "Lindo relógio"})
	tf.addProduct(p)
	tf.do(http.MethodPost, "/cart/open", url.Values{})
	tf.do(http.MethodPost, "/cart/products/"+p.ID+"/quantity/+", url.Values{})
	tf.sessions.Flush()
	require.Equal(t, 1, tf.sessions.Len())
	require.Equal(t, 1, tf.panelCount())

	tf.fe.Sweep(context.Background(), time.Now().Add(time.Minute))

	assert.Equal(t, 0, tf.sessions.Len())
	assert.Equal(t, 0, tf.panelCount())

	state := tf.cartState()
	assert.True(t, state.Open, "the cart comes back from the store")
	require.Len(t, state.Items, 1)
	assert.Equal(t, p.ID, state.Items[0].ID)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	tf := newTestFrontend(t)
	tf.addProduct(tf.api.Create(catalog.Product{}))
	tf.sessions.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tf.fe.RunSweeper(ctx, 5*time.Millisecond, time.Nanosecond)
	}()

	assert.Eventually(t, func() bool { return tf.sessions.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper kept running after cancel")
	}
}

func counterValue(t *testing.T, reader sdkmetric.Reader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestCartCountersRecordOnlyChanges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tf := newTestFrontendWithMeter(t, provider.Meter(serviceName))
	a := tf.api.Create(catalog.Product{})
	b := tf.api.Create(catalog.Product{})

	tf.addProduct(a)
	tf.addProduct(a)
	tf.addProduct(b)
	tf.do(http.MethodPost, "/cart/products/"+a.ID+"/remove", url.Values{})
	tf.do(http.MethodPost, "/cart/products/"+a.ID+"/remove", url.Values{})
	tf.do(http.MethodPost, "/cart/products/missing/remove", url.Values{})

	assert.Equal(t, int64(2), counterValue(t, reader, "app.cart.products_added"))
	assert.Equal(t, int64(1), counterValue(t, reader, "app.cart.products_removed"))
}

func TestConcurrentAddsCountOnce(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tf := newTestFrontendWithMeter(t, provider.Meter(serviceName))
	p := tf.api.Create(catalog.Product{})
	tf.do(http.MethodGet, "/", nil)
	cookie := tf.cookie

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			req := httptest.NewRequest(http.MethodPost, "/cart/products", strings.NewReader(url.Values{"product_id": {p.ID}}.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.AddCookie(cookie)
			rec := httptest.NewRecorder()
			tf.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusSeeOther {
				return fmt.Errorf("unexpected status %d", rec.Code)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, tf.cartState().Items, 1)
	assert.Equal(t, int64(1), counterValue(t, reader, "app.cart.products_added"))
}

func TestEnsureSessionID(t *testing.T) {
	var got string
	handler := ensureSessionID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = sessionID(r)
	}))

	serve := func(cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("missing", func(t *testing.T) {
		rec := serve(nil)
		require.Len(t, rec.Result().Cookies(), 1)
		assert.NotEmpty(t, got)
		assert.Equal(t, got, rec.Result().Cookies()[0].Value)
	})

	t.Run("empty", func(t *testing.T) {
		rec := serve(&http.Cookie{Name: cookieSessionID, Value: ""})
		require.Len(t, rec.Result().Cookies(), 1)
		assert.NotEmpty(t, got)
	})

	t.Run("present", func(t *testing.T) {
		rec := serve(&http.Cookie{Name: cookieSessionID, Value: "abc"})
		assert.Empty(t, rec.Result().Cookies())
		assert.Equal(t, "abc", got)
	})
}
