package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

func TestParseInvoiceStatus(t *testing.T) {
	cases := []struct {
		raw     string
		want    InvoiceStatus
		matched bool
	}{
		{"paid", InvoicePaid, true},
		{"OVERDUE", InvoiceOverdue, true},
		{"Draft", InvoiceDraft, true},
		{"", InvoiceIssued, false},
		{"cancelled", InvoiceIssued, false},
	}
	for _, tc := range cases {
		got, matched := ParseInvoiceStatus(tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
		assert.Equal(t, tc.matched, matched, tc.raw)
	}
}

func TestOpportunityStageValid(t *testing.T) {
	assert.True(t, StageNegotiation.Valid())
	assert.False(t, OpportunityStage("closed").Valid())
}

func TestParseIDMalformedIsNotFound(t *testing.T) {
	_, err := ParseID("opportunity", "abc")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), DateOnly(in))
}
