package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_APDU(t *testing.T) {
	h := newServer(t).Handler()

	rec := do(t, h, http.MethodPost, "/apdu", `{"apdu":"00 B0 9C 00 02"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var resp APDUResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "31149000", resp.Response)
	assert.Equal(t, "3114", resp.Data)
	assert.Equal(t, "9000", resp.SW)
	assert.NotEmpty(t, resp.Meaning)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"Not JSON", "apdu", http.StatusBadRequest},
		{"Missing APDU", `{}`, http.StatusBadRequest},
		{"Invalid hex", `{"apdu":"0G"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/apdu", tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var e ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
			assert.Equal(t, tt.code, e.Code)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestHandler_Admin(t *testing.T) {
	h := newServer(t).Handler()

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	rec = do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, []string{"file-management"}, status.Protocols)
	assert.Contains(t, status.SecurityStatus, "GLOBAL")

	rec = do(t, h, http.MethodPost, "/apdu", `{"apdu":"`+selectMF+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "eidsim_commands_total")
	assert.Contains(t, string(body), "eidsim_resets_total")

	rec = do(t, h, http.MethodGet, "/apdu", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
