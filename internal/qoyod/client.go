// Package qoyod is a small client for the Qoyod accounting REST API.
package qoyod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.qoyod.com/2.0"
	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 20 * time.Second

	maxBodyBytes = 1 << 20
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("qoyod: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// IsNotFound reports whether err is a 404 from the API. Search endpoints
// answer 404 when nothing matches.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one tenant's Qoyod account.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d, Transport: c.http.Transport}
		}
	}
}

// New builds a client. An empty baseURL falls back to DefaultBaseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("qoyod: encode %s %s: %w", method, path, err)
		}
		reqBody = data
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("qoyod: build request: %w", err)
	}
	req.Header.Set("API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		traceFrom(ctx).record(Exchange{Method: method, Path: path, Request: reqBody, Error: err.Error()})
		return fmt.Errorf("qoyod: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	traceFrom(ctx).record(Exchange{Method: method, Path: path, Status: resp.StatusCode, Request: reqBody, Response: respBody})
	if err != nil {
		return fmt.Errorf("qoyod: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("qoyod: decode %s %s: %w", method, path, err)
	}
	return nil
}

// FindCustomerByName returns the customer with exactly this name, or nil.
func (c *Client) FindCustomerByName(ctx context.Context, name string) (*Contact, error) {
	var out struct {
		Customers []Contact `json:"customers"`
	}
	err := c.do(ctx, http.MethodGet, "/customers", url.Values{"q[name_eq]": {name}}, nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	for i := range out.Customers {
		if out.Customers[i].Name == name {
			return &out.Customers[i], nil
		}
	}
	return nil, nil
}

// CreateCustomer creates a customer contact.
func (c *Client) CreateCustomer(ctx context.Context, in ContactInput) (*Contact, error) {
	var out struct {
		Contact Contact `json:"contact"`
	}
	if err := c.do(ctx, http.MethodPost, "/customers", nil, map[string]any{"contact": in}, &out); err != nil {
		return nil, err
	}
	return &out.Contact, nil
}

// FindProductBySKU returns the product with this SKU, or nil.
func (c *Client) FindProductBySKU(ctx context.Context, sku string) (*Product, error) {
	var out struct {
		Products []Product `json:"products"`
	}
	err := c.do(ctx, http.MethodGet, "/products", url.Values{"q[sku_eq]": {sku}}, nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	for i := range out.Products {
		if out.Products[i].SKU == sku {
			return &out.Products[i], nil
		}
	}
	return nil, nil
}

// CreateProduct creates a product.
func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	if err := c.do(ctx, http.MethodPost, "/products", nil, map[string]any{"product": in}, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

// UpdateProduct replaces the writable fields of a product.
func (c *Client) UpdateProduct(ctx context.Context, id ID, in ProductInput) (*Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	path := "/products/" + url.PathEscape(string(id))
	if err := c.do(ctx, http.MethodPut, path, nil, map[string]any{"product": in}, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

// ListAccounts returns the chart of accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// ListUnitTypes returns the product unit types.
func (c *Client) ListUnitTypes(ctx context.Context) ([]UnitType, error) {
	var out struct {
		UnitTypes []UnitType `json:"product_unit_types"`
	}
	if err := c.do(ctx, http.MethodGet, "/product_unit_types", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.UnitTypes, nil
}

// ListInventories returns the account's inventories (warehouses).
func (c *Client) ListInventories(ctx context.Context) ([]Inventory, error) {
	var out struct {
		Inventories []Inventory `json:"inventories"`
	}
	if err := c.do(ctx, http.MethodGet, "/inventories", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Inventories, nil
}

// CreateInvoice posts an approved sales invoice.
func (c *Client) CreateInvoice(ctx context.Context, in InvoiceInput) (*Document, error) {
	var out struct {
		Invoice Document `json:"invoice"`
	}
	if err := c.do(ctx, http.MethodPost, "/invoices", nil, map[string]any{"invoice": in}, &out); err != nil {
		return nil, err
	}
	return &out.Invoice, nil
}

// CreateInvoicePayment records a receipt against a remote invoice.
func (c *Client) CreateInvoicePayment(ctx context.Context, in PaymentInput) (*Document, error) {
	var out struct {
		Payment Document `json:"invoice_payment"`
	}
	if err := c.do(ctx, http.MethodPost, "/invoice_payments", nil, map[string]any{"invoice_payment": in}, &out); err != nil {
		return nil, err
	}
	return &out.Payment, nil
}

// CreateCreditNote posts a credit note.
func (c *Client) CreateCreditNote(ctx context.Context, in CreditNoteInput) (*Document, error) {
	var out struct {
		CreditNote Document `json:"credit_note"`
	}
	if err := c.do(ctx, http.MethodPost, "/credit_notes", nil, map[string]any{"credit_note": in}, &out); err != nil {
		return nil, err
	}
	return &out.CreditNote, nil
}
