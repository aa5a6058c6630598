package skyline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetchInvoicesDecodesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoices", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("updated_since"))
		assert.Equal(t, "acme", r.URL.Query().Get("tenant"))
		_, _ = io.WriteString(w, `[
			{"invoiceNumber":"INV-1","opportunityId":"SO-1","amount":125.5,"issueDate":"2024-02-01","dueDate":"2024-03-01T00:00:00","status":"PAID","currency":"eur"},
			{"invoiceNumber":"INV-2","opportunityId":"SO-2","amount":"80.00","issueDate":"2024-02-02"}
		]`)
	}))
	defer srv.Close()

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, Tenant: "acme"})
	invoices, err := client.FetchInvoices(context.Background(), time.Date(2024, 2, 1, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	first := invoices[0]
	assert.Equal(t, "INV-1", first.ExternalID)
	assert.Equal(t, "SO-1", first.OpportunityExternalID)
	assert.Equal(t, "125.5", first.Amount.String())
	assert.Equal(t, "PAID", first.Status)
	assert.Equal(t, "eur", first.Currency)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *first.DueDate)

	second := invoices[1]
	assert.Equal(t, "issued", second.Status)
	assert.Equal(t, "USD", second.Currency)
	assert.Nil(t, second.DueDate)
}

func TestClientFetchInvoicesNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(context.Background(), Options{BaseURL: srv.URL}).FetchInvoices(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClientUpdateSaleDate(t *testing.T) {
	var got updateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/sales-orders/SO-9/dates", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"updateId":"UPD-1","message":"ok"}`)
	}))
	defer srv.Close()

	out, err := NewClient(context.Background(), Options{BaseURL: srv.URL, Tenant: "acme"}).
		UpdateSaleDate(context.Background(), "SO-9", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, out.Success)
	require.NotNil(t, out.Reference)
	assert.Equal(t, "UPD-1", *out.Reference)
	assert.Equal(t, updateRequest{CommittedDate: "2024-06-30", Tenant: "acme"}, got)
}

func TestClientUpdateSaleDateRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, "quota exceeded")
	}))
	defer srv.Close()

	out, err := NewClient(context.Background(), Options{BaseURL: srv.URL}).
		UpdateSaleDate(context.Background(), "SO-9", time.Now())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Nil(t, out.Reference)
	require.NotNil(t, out.Message)
	assert.Equal(t, "Failed with status 422: quota exceeded", *out.Message)
}

func TestClientTransportErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, err := NewClient(context.Background(), Options{BaseURL: base, Timeout: time.Second}).
		UpdateSaleDate(context.Background(), "SO-9", time.Now())
	require.Error(t, err)
}

func TestClientUsesClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/invoices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(context.Background(), Options{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"})
	invoices, err := client.FetchInvoices(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestNewSelectsStandInInMockMode(t *testing.T) {
	gw := New(context.Background(), Options{MockMode: true})
	_, ok := gw.(StandIn)
	assert.True(t, ok)

	gw = New(context.Background(), Options{BaseURL: "http://skyline.invalid"})
	_, ok = gw.(*Client)
	assert.True(t, ok)
}
