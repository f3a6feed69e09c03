// storefront/catalog/client.go

package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ProductsPath is the products collection endpoint of the API.
const ProductsPath = "/api/products"

var (
	// ErrUnexpectedStatus is the cause of errors for non-2xx API answers.
	ErrUnexpectedStatus = errors.New("unexpected status from products API")
	// ErrNotFound is the cause of errors for products the API does not know.
	ErrNotFound = errors.New("product not found")
)

// Lister fetches the product collection.
type Lister interface {
	ListProducts(ctx context.Context) ([]Product, error)
}

// Getter fetches a single product by id.
type Getter interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

// API is the part of the products API the storefront uses.
type API interface {
	Lister
	Getter
}

// ListResponse is the body of GET /api/products.
type ListResponse struct {
	Products []Product `json:"products"`
}

// Client talks to the products API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient creates a Client for the API at baseURL. A nil httpClient gets a
// client with the given timeout.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tracer:     otel.Tracer("storefront/catalog"),
	}
}

// ListProducts issues a single GET for the product collection.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	ctx, span := c.tracer.Start(ctx, "ListProducts", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var body ListResponse
	if err := c.get(ctx, ProductsPath, &body); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("app.products.count", len(body.Products)))
	return body.Products, nil
}

// GetProduct fetches the product with the given id. Unknown ids yield an
// error whose cause is ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	ctx, span := c.tracer.Start(ctx, "GetProduct",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("app.product_id", id)))
	defer span.End()

	var product Product
	if err := c.get(ctx, ProductsPath+"/"+url.PathEscape(id), &product); err != nil {
		span.RecordError(err)
		return Product{}, err
	}
	return product, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build products request")
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to GET %s", target)
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusNotFound && path != ProductsPath:
		return errors.Wrapf(ErrNotFound, "GET %s", target)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Wrapf(ErrUnexpectedStatus, "GET %s: %s", target, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode products response")
	}
	return nil
}
