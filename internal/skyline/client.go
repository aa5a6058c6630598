package skyline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultStatus    = "issued"
	defaultCurrency  = "USD"
	maxErrorBodySize = 4 << 10
)

// Client is the live REST client.
type Client struct {
	baseURL    string
	tenant     string
	httpClient *http.Client
}

// NewClient builds a client authenticating with the client-credentials grant.
// Without a credential pair requests are sent unauthenticated.
func NewClient(ctx context.Context, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	httpClient := &http.Client{Timeout: timeout}
	if opts.ClientID != "" && opts.ClientSecret != "" {
		tokenURL := opts.TokenURL
		if tokenURL == "" {
			tokenURL = base + "/oauth/token"
		}
		cfg := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     tokenURL,
		}
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
		httpClient = cfg.Client(tokenCtx)
		httpClient.Timeout = timeout
	}
	return &Client{baseURL: base, tenant: opts.Tenant, httpClient: httpClient}
}

type invoiceWire struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	OpportunityID string          `json:"opportunityId"`
	Amount        decimal.Decimal `json:"amount"`
	IssueDate     string          `json:"issueDate"`
	DueDate       *string         `json:"dueDate"`
	Status        *string         `json:"status"`
	Currency      *string         `json:"currency"`
}

// FetchInvoices lists invoices created or updated on or after since.
func (c *Client) FetchInvoices(ctx context.Context, since time.Time) ([]InvoicePayload, error) {
	q := url.Values{}
	q.Set("updated_since", since.Format(time.DateOnly))
	q.Set("tenant", c.tenant)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/invoices?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skyline: fetch invoices: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("skyline: fetch invoices returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wire []invoiceWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("skyline: decode invoices: %w", err)
	}
	out := make([]InvoicePayload, 0, len(wire))
	for _, w := range wire {
		p, err := w.payload()
		if err != nil {
			return nil, fmt.Errorf("skyline: invoice %s: %w", w.InvoiceNumber, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (w invoiceWire) payload() (InvoicePayload, error) {
	issue, err := parseDate(w.IssueDate)
	if err != nil {
		return InvoicePayload{}, fmt.Errorf("issueDate: %w", err)
	}
	p := InvoicePayload{
		ExternalID:            w.InvoiceNumber,
		OpportunityExternalID: w.OpportunityID,
		Amount:                w.Amount,
		IssueDate:             issue,
		Status:                defaultStatus,
		Currency:              defaultCurrency,
	}
	if w.DueDate != nil && *w.DueDate != "" {
		due, err := parseDate(*w.DueDate)
		if err != nil {
			return InvoicePayload{}, fmt.Errorf("dueDate: %w", err)
		}
		p.DueDate = &due
	}
	if w.Status != nil {
		p.Status = *w.Status
	}
	if w.Currency != nil {
		p.Currency = *w.Currency
	}
	return p, nil
}

// parseDate accepts plain dates and full timestamps, keeping the calendar date.
func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

type updateRequest struct {
	CommittedDate string `json:"committedDate"`
	Tenant        string `json:"tenant"`
}

type updateResponse struct {
	UpdateID *string `json:"updateId"`
	Message  *string `json:"message"`
}

// UpdateSaleDate propagates a committed date to a sales order. Non-2xx
// responses are reported as an unsuccessful outcome.
func (c *Client) UpdateSaleDate(ctx context.Context, orderID string, newDate time.Time) (UpdateOutcome, error) {
	body, err := json.Marshal(updateRequest{CommittedDate: newDate.Format(time.DateOnly), Tenant: c.tenant})
	if err != nil {
		return UpdateOutcome{}, err
	}
	endpoint := fmt.Sprintf("%s/sales-orders/%s/dates", c.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return UpdateOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UpdateOutcome{}, fmt.Errorf("skyline: update sale date: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return UpdateOutcome{}, fmt.Errorf("skyline: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := fmt.Sprintf("Failed with status %d: %s", resp.StatusCode, string(raw))
		return UpdateOutcome{Success: false, Message: &msg}, nil
	}
	var decoded updateResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return UpdateOutcome{}, fmt.Errorf("skyline: decode update response: %w", err)
		}
	}
	return UpdateOutcome{Success: true, Reference: decoded.UpdateID, Message: decoded.Message}, nil
}
