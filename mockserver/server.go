// storefront/mockserver/server.go

// Package mockserver is an in-memory stand-in for the products API, used by
// tests and for local development.
package mockserver

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environments accepted by Options.Environment.
const (
	EnvironmentTest        = "test"
	EnvironmentDevelopment = "development"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

type fixtures struct {
	Products []catalog.Product `yaml:"products"`
}

// Options configures a Server.
type Options struct {
	// Environment "test" starts empty; anything else seeds the fixtures.
	Environment string
	// Seed drives generated titles and prices.
	Seed uint64
}

// Server holds the fixture products and serves them over HTTP.
type Server struct {
	mu       sync.Mutex
	products []catalog.Product
	nextID   int
	failing  bool
	requests int
	factory  *productFactory

	httpServer *httptest.Server
}

// New creates a Server. Outside the test environment it is seeded from the
// embedded fixtures.
func New(opts Options) (*Server, error) {
	s := &Server{
		nextID:  1,
		factory: newProductFactory(opts.Seed),
	}
	if opts.Environment == EnvironmentTest {
		return s, nil
	}

	var f fixtures
	if err := yaml.Unmarshal(fixturesYAML, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse fixtures")
	}
	for _, p := range f.Products {
		s.Create(p)
	}
	return s, nil
}

// Create stores a product built from overrides and returns it. The id is
// always assigned by the server.
func (s *Server) Create(overrides catalog.Product) catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.factory.build(s.nextID, overrides)
	s.nextID++
	s.products = append(s.products, p)
	return p
}

// CreateList stores n generated products.
func (s *Server) CreateList(n int) []catalog.Product {
	out := make([]catalog.Product, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.Create(catalog.Product{}))
	}
	return out
}

// Products returns the stored products in creation order.
func (s *Server) Products() []catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]catalog.Product, len(s.products))
	copy(out, s.products)
	return out
}

// SetFailing makes the API answer every request with 500.
func (s *Server) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Requests counts the GET requests received for the product collection.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(catalog.ProductsPath, s.listProducts).Methods(http.MethodGet)
	r.HandleFunc(catalog.ProductsPath+"/{id}", s.getProduct).Methods(http.MethodGet)
	return r
}

// Start serves the API on a loopback port and returns its base URL.
func (s *Server) Start() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		s.httpServer = httptest.NewServer(s.Handler())
	}
	return s.httpServer.URL
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		s.httpServer.Close()
		s.httpServer = nil
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	failing := s.failing
	products := make([]catalog.Product, len(s.products))
	copy(products, s.products)
	s.mu.Unlock()

	if failing {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "products unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, catalog.ListResponse{Products: products})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	failing := s.failing
	var (
		found catalog.Product
		ok    bool
	)
	for _, p := range s.products {
		if p.ID == id {
			found, ok = p, true
			break
		}
	}
	s.mu.Unlock()

	switch {
	case failing:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "products unavailable"})
	case !ok:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
	default:
		writeJSON(w, http.StatusOK, found)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
