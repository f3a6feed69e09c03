// storefront/services/frontend.go

// Package services serves the storefront pages and cart actions over HTTP.
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/norun9/microservices-demo-ambient/storefront/cart"
	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/norun9/microservices-demo-ambient/storefront/telemetry"
	"github.com/norun9/microservices-demo-ambient/storefront/views"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "storefront"

// FrontendServer wires the catalog API, the session carts and the templates
// into HTTP handlers.
type FrontendServer struct {
	api      catalog.API
	sessions *cart.Sessions
	store    Pinger
	renderer *views.Renderer
	metrics  *telemetry.ShopMetrics
	log      logrus.FieldLogger
	tracer   trace.Tracer

	panelsMu sync.Mutex
	panels   map[string]*panelEntry
}

type panelEntry struct {
	panel    *views.CartPanel
	lastSeen time.Time
}

// NewFrontendServer creates the server. store is only used for health checks.
func NewFrontendServer(api catalog.API, sessions *cart.Sessions, store Pinger, log logrus.FieldLogger) (*FrontendServer, error) {
	return newFrontendServer(api, sessions, store, log, otel.Meter(serviceName))
}

func newFrontendServer(api catalog.API, sessions *cart.Sessions, store Pinger, log logrus.FieldLogger, meter metric.Meter) (*FrontendServer, error) {
	renderer, err := views.NewRenderer()
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewShopMetrics(meter)
	if err != nil {
		return nil, err
	}
	return &FrontendServer{
		api:      api,
		sessions: sessions,
		store:    store,
		renderer: renderer,
		metrics:  metrics,
		log:      log,
		tracer:   otel.Tracer(serviceName),
		panels:   make(map[string]*panelEntry),
	}, nil
}

// Handler returns the routed and instrumented HTTP handler.
func (fe *FrontendServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName))

	r.HandleFunc("/", fe.homeHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/cart/open", fe.openCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/close", fe.closeCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/clear", fe.clearCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/products", fe.addProductHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/products/{id}/remove", fe.removeProductHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/products/{id}/quantity/{op}", fe.quantityHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/cart", fe.cartStateHandler).Methods(http.MethodGet)
	r.HandleFunc("/_healthz", healthHandler(fe.store)).Methods(http.MethodGet)

	var handler http.Handler = &logHandler{log: fe.log, next: r}
	handler = ensureSessionID(handler)
	return handler
}

func (fe *FrontendServer) homeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := fe.tracer.Start(r.Context(), "ProductList.Mount")
	defer span.End()
	log := requestLog(r, fe.log)

	list := views.NewProductList(fe.api)
	if err := list.Mount(ctx); err != nil {
		log.WithError(err).Warn("failed to load product list")
		span.RecordError(err)
		fe.metrics.FetchFailures.Add(ctx, 1)
	}
	list.Search(r.FormValue("search"))

	products := list.Products()
	span.SetAttributes(
		attribute.String("app.search_term", list.SearchTerm()),
		attribute.Int("app.products.total", list.Total()),
		attribute.Int("app.products.shown", len(products)),
	)

	state := fe.sessions.Peek(ctx, sessionID(r))
	data := views.ProductListPage{
		Page:         fe.page(r, state),
		SearchTerm:   list.SearchTerm(),
		Products:     products,
		ErrorMessage: list.ErrorMessage(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := fe.renderer.ProductList(w, data); err != nil {
		log.WithError(err).Error("render failed")
	}
}

func (fe *FrontendServer) openCartHandler(w http.ResponseWriter, r *http.Request) {
	state := fe.cartOf(r).Open()
	fe.panelOf(r).Mount(state.Items)
	redirectBack(w, r)
}

func (fe *FrontendServer) closeCartHandler(w http.ResponseWriter, r *http.Request) {
	fe.cartOf(r).Close()
	redirectBack(w, r)
}

func (fe *FrontendServer) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	_, span := fe.tracer.Start(r.Context(), "Cart.ClearCart")
	defer span.End()

	fe.cartOf(r).ClearCart()
	fe.panelOf(r).Mount(nil)
	redirectBack(w, r)
}

func (fe *FrontendServer) addProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := fe.tracer.Start(r.Context(), "Cart.AddProduct")
	defer span.End()

	id := strings.TrimSpace(r.PostFormValue("product_id"))
	if id == "" {
		fe.renderHTTPError(w, r, errors.New("product_id is required"), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("app.product_id", id))

	product, err := fe.api.GetProduct(ctx, id)
	if err != nil {
		span.RecordError(err)
		code := http.StatusBadGateway
		if errors.Is(err, catalog.ErrNotFound) {
			code = http.StatusNotFound
		}
		fe.renderHTTPError(w, r, errors.Wrap(err, "failed to retrieve product"), code)
		return
	}

	if _, added := fe.cartOf(r).TryAddProduct(product); added {
		fe.metrics.ProductsAdded.Add(ctx, 1, metric.WithAttributes(attribute.String("app.product_id", product.ID)))
	}
	redirectBack(w, r)
}

func (fe *FrontendServer) removeProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := fe.tracer.Start(r.Context(), "Cart.RemoveProduct")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("app.product_id", id))

	if _, removed := fe.cartOf(r).TryRemoveProduct(id); removed {
		fe.metrics.ProductsRemoved.Add(ctx, 1)
	}
	fe.panelOf(r).Drop(id)
	redirectBack(w, r)
}

func (fe *FrontendServer) quantityHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	panel := fe.panelOf(r)

	var quantity int
	switch vars["op"] {
	case "+":
		quantity = panel.Increment(vars["id"])
	case "-":
		quantity = panel.Decrement(vars["id"])
	default:
		fe.renderHTTPError(w, r, errors.Errorf("unknown quantity operation %q", vars["op"]), http.StatusBadRequest)
		return
	}
	requestLog(r, fe.log).WithFields(logrus.Fields{"product": vars["id"], "quantity": quantity}).Debug("quantity changed")
	redirectBack(w, r)
}

func (fe *FrontendServer) cartStateHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(fe.sessions.Peek(r.Context(), sessionID(r))); err != nil {
		requestLog(r, fe.log).WithError(err).Error("failed to encode cart")
	}
}

func (fe *FrontendServer) renderHTTPError(w http.ResponseWriter, r *http.Request, err error, code int) {
	requestLog(r, fe.log).WithError(err).WithField("http.resp.status", code).Warn("request error")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	data := views.ErrorPage{
		Page:       fe.page(r, fe.sessions.Peek(r.Context(), sessionID(r))),
		StatusCode: code,
		Error:      err.Error(),
	}
	if err := fe.renderer.Error(w, data); err != nil {
		requestLog(r, fe.log).WithError(err).Error("render failed")
	}
}

func (fe *FrontendServer) page(r *http.Request, state cart.State) views.Page {
	return views.Page{
		RequestID: requestID(r),
		Cart:      state,
		CartItems: views.CartItems(state, fe.lookupPanel(r)),
	}
}

func (fe *FrontendServer) cartOf(r *http.Request) *cart.Manager {
	return fe.sessions.Get(r.Context(), sessionID(r))
}

func (fe *FrontendServer) panelOf(r *http.Request) *views.CartPanel {
	fe.panelsMu.Lock()
	defer fe.panelsMu.Unlock()

	id := sessionID(r)
	e, ok := fe.panels[id]
	if !ok {
		e = &panelEntry{panel: views.NewCartPanel()}
		fe.panels[id] = e
	}
	e.lastSeen = time.Now()
	return e.panel
}

// lookupPanel is panelOf for readers: it never creates a panel.
func (fe *FrontendServer) lookupPanel(r *http.Request) *views.CartPanel {
	fe.panelsMu.Lock()
	defer fe.panelsMu.Unlock()

	e, ok := fe.panels[sessionID(r)]
	if !ok {
		return nil
	}
	e.lastSeen = time.Now()
	return e.panel
}

// Sweep releases the carts and cart panels of sessions idle since cutoff.
func (fe *FrontendServer) Sweep(ctx context.Context, cutoff time.Time) {
	evicted := fe.sessions.Sweep(ctx, cutoff)

	fe.panelsMu.Lock()
	defer fe.panelsMu.Unlock()
	for _, id := range evicted {
		delete(fe.panels, id)
	}
	for id, e := range fe.panels {
		if e.lastSeen.Before(cutoff) {
			delete(fe.panels, id)
		}
	}
}

// RunSweeper calls Sweep every interval, evicting sessions idle for longer
// than idle, until ctx is done.
func (fe *FrontendServer) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fe.Sweep(ctx, now.Add(-idle))
		}
	}
}

func redirectBack(w http.ResponseWriter, r *http.Request) {
	target := "/"
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" && (ref.Host == "" || ref.Host == r.Host) {
		target = ref.RequestURI()
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusSeeOther)
}
