package dmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dmscripts/internal/domain"
)

// Client is a minimal Digital Marketplace Data API client.
type Client struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:   baseURL,
		Token:     token,
		UserAgent: "dmscripts",
		Timeout:   30 * time.Second,
	}
}

// HTTPError wraps non-2xx responses and transport failures.
type HTTPError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s (status: %d)", e.Message, e.StatusCode)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

type links struct {
	Next string `json:"next"`
}

// GetInterestedSuppliers returns ids of suppliers that registered interest in a framework.
func (c *Client) GetInterestedSuppliers(ctx context.Context, frameworkSlug string) ([]int64, error) {
	var resp struct {
		InterestedSuppliers []int64 `json:"interestedSuppliers"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("frameworks/%s/interest", url.PathEscape(frameworkSlug)), nil, &resp)
	return resp.InterestedSuppliers, err
}

// GetSupplierFrameworkInfo returns the supplier's interest record, including declaration and result.
func (c *Client) GetSupplierFrameworkInfo(ctx context.Context, supplierID int64, frameworkSlug string) (domain.SupplierFramework, error) {
	var resp struct {
		FrameworkInterest domain.SupplierFramework `json:"frameworkInterest"`
	}
	err := c.do(ctx, http.MethodGet, supplierFrameworkPath(supplierID, frameworkSlug), nil, &resp)
	return resp.FrameworkInterest, err
}

// FindDraftServicesByFramework walks every page of a supplier's draft services on a framework.
func (c *Client) FindDraftServicesByFramework(ctx context.Context, frameworkSlug string, supplierID int64) ([]domain.DraftService, error) {
	q := url.Values{}
	q.Set("supplier_id", strconv.FormatInt(supplierID, 10))
	endpoint := fmt.Sprintf("draft-services/framework/%s?%s", url.PathEscape(frameworkSlug), q.Encode())
	return collectPages[domain.DraftService](ctx, c, endpoint, "services")
}

// SetFrameworkResult records a pass (true) or fail (false) for a supplier.
func (c *Client) SetFrameworkResult(ctx context.Context, supplierID int64, frameworkSlug string, onFramework bool, updatedBy string) error {
	body := map[string]any{
		"frameworkInterest": map[string]any{"onFramework": onFramework},
		"updated_by":        updatedBy,
	}
	return c.do(ctx, http.MethodPost, supplierFrameworkPath(supplierID, frameworkSlug), body, nil)
}

// FindFrameworkSuppliers lists supplier framework records for a framework.
func (c *Client) FindFrameworkSuppliers(ctx context.Context, frameworkSlug string) ([]domain.SupplierFramework, error) {
	var resp struct {
		SupplierFrameworks []domain.SupplierFramework `json:"supplierFrameworks"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("frameworks/%s/suppliers", url.PathEscape(frameworkSlug)), nil, &resp)
	return resp.SupplierFrameworks, err
}

// FindServices lists a supplier's live services on a framework.
func (c *Client) FindServices(ctx context.Context, supplierID int64, frameworkSlug string) ([]domain.Service, error) {
	q := url.Values{}
	q.Set("supplier_id", strconv.FormatInt(supplierID, 10))
	q.Set("framework", frameworkSlug)
	var resp struct {
		Services []domain.Service `json:"services"`
	}
	err := c.do(ctx, http.MethodGet, "services?"+q.Encode(), nil, &resp)
	return resp.Services, err
}

// FindUsers walks every page of users.
func (c *Client) FindUsers(ctx context.Context) ([]domain.User, error) {
	return collectPages[domain.User](ctx, c, "users", "users")
}

// GetUserByEmail returns nil when no user has the address.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	q := url.Values{}
	q.Set("email_address", email)
	var resp struct {
		Users domain.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "users?"+q.Encode(), nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Users, nil
}

// CreateUser creates a user account.
func (c *Client) CreateUser(ctx context.Context, fields map[string]any) (domain.User, error) {
	var resp struct {
		Users domain.User `json:"users"`
	}
	err := c.do(ctx, http.MethodPost, "users", map[string]any{"users": fields}, &resp)
	return resp.Users, err
}

// FindAuditEvents lists audit events for an object.
func (c *Client) FindAuditEvents(ctx context.Context, auditType, objectType string, objectID int64) ([]domain.AuditEvent, error) {
	q := url.Values{}
	q.Set("audit-type", auditType)
	q.Set("object-type", objectType)
	q.Set("object-id", strconv.FormatInt(objectID, 10))
	var resp struct {
		AuditEvents []domain.AuditEvent `json:"auditEvents"`
	}
	err := c.do(ctx, http.MethodGet, "audit-events?"+q.Encode(), nil, &resp)
	return resp.AuditEvents, err
}

// GetSelectionAnswers returns the raw selection answers document.
func (c *Client) GetSelectionAnswers(ctx context.Context, supplierID int64, frameworkSlug string) (map[string]any, error) {
	var resp map[string]any
	endpoint := fmt.Sprintf("suppliers/%d/selection-answers/%s", supplierID, url.PathEscape(frameworkSlug))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// FindSuppliers walks every page of suppliers.
func (c *Client) FindSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return collectPages[domain.Supplier](ctx, c, "suppliers", "suppliers")
}

// FindSuppliersByDUNS returns suppliers registered with a DUNS number.
func (c *Client) FindSuppliersByDUNS(ctx context.Context, duns string) ([]domain.Supplier, error) {
	q := url.Values{}
	q.Set("duns_number", duns)
	var resp struct {
		Suppliers []domain.Supplier `json:"suppliers"`
	}
	err := c.do(ctx, http.MethodGet, "suppliers?"+q.Encode(), nil, &resp)
	return resp.Suppliers, err
}

// CreateSupplier creates a supplier.
func (c *Client) CreateSupplier(ctx context.Context, fields map[string]any) (domain.Supplier, error) {
	var resp struct {
		Suppliers domain.Supplier `json:"suppliers"`
	}
	err := c.do(ctx, http.MethodPost, "suppliers", map[string]any{"suppliers": fields}, &resp)
	return resp.Suppliers, err
}

// UpdateSupplier patches supplier fields.
func (c *Client) UpdateSupplier(ctx context.Context, supplierID int64, fields map[string]any, updatedBy string) error {
	body := map[string]any{
		"suppliers":  fields,
		"updated_by": updatedBy,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("suppliers/%d", supplierID), body, nil)
}

// GetSupplierFrameworks returns every framework interest a supplier holds.
func (c *Client) GetSupplierFrameworks(ctx context.Context, supplierID int64) ([]domain.SupplierFramework, error) {
	var resp struct {
		FrameworkInterest []domain.SupplierFramework `json:"frameworkInterest"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("suppliers/%d/frameworks", supplierID), nil, &resp)
	return resp.FrameworkInterest, err
}

// GetFramework fetches a framework by slug.
func (c *Client) GetFramework(ctx context.Context, frameworkSlug string) (domain.Framework, error) {
	var resp struct {
		Frameworks domain.Framework `json:"frameworks"`
	}
	err := c.do(ctx, http.MethodGet, "frameworks/"+url.PathEscape(frameworkSlug), nil, &resp)
	return resp.Frameworks, err
}

func collectPages[T any](ctx context.Context, c *Client, endpoint, key string) ([]T, error) {
	var all []T
	for endpoint != "" {
		var page map[string]json.RawMessage
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		if raw, ok := page[key]; ok {
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			all = append(all, items...)
		}
		endpoint = ""
		if raw, ok := page["links"]; ok {
			var l links
			if err := json.Unmarshal(raw, &l); err == nil {
				endpoint = l.Next
			}
		}
	}
	return all, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		target = c.base() + "/" + strings.TrimLeft(endpoint, "/")
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &HTTPError{StatusCode: http.StatusServiceUnavailable, Message: "Request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if s, ok := env.Error.(string); ok {
			return s
		}
		b, _ := json.Marshal(env.Error)
		return string(b)
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return "Request failed"
}

func supplierFrameworkPath(supplierID int64, frameworkSlug string) string {
	return fmt.Sprintf("suppliers/%d/frameworks/%s", supplierID, url.PathEscape(frameworkSlug))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
