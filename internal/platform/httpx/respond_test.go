package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"not found", fmt.Errorf("opportunity: %w", shared.ErrNotFound), http.StatusNotFound, "opportunity: not found"},
		{"duplicate", shared.ErrAlreadyExists, http.StatusConflict, "already exists"},
		{"sync busy", shared.ErrSyncInProgress, http.StatusConflict, shared.ErrSyncInProgress.Error()},
		{"validation", fmt.Errorf("%w: amount", shared.ErrValidation), http.StatusBadRequest, "validation failed: amount"},
		{"upstream", shared.NewUpstreamError("quota exceeded", nil), http.StatusBadGateway, "quota exceeded"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			var problem ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tc.status, problem.Status)
			assert.Equal(t, tc.detail, problem.Detail)
		})
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Acme","extra":true}`))

	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, shared.ErrValidation)
}
