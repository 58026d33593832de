package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanRouter(t *testing.T) *gin.Engine {
	st := newStack(t)
	h := NewScanHandler(st.scanner, nil, testLogger())

	router := gin.New()
	router.POST("/scan", h.Scan)
	router.GET("/scanner/status", h.RotatorStatus)
	return router
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestScanEndpoint(t *testing.T) {
	router := scanRouter(t)

	w := postJSON(router, "/scan", gin.H{
		"venues":       []string{"alpha", "beta"},
		"assets":       []string{"USDT"},
		"bridge_asset": "XRP",
		"max_amount":   1000,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.TotalPaths)
	assert.Equal(t, resp.TotalPaths, resp.EvaluatedCount+resp.SkippedCount)
	// Only alpha->beta clears a zero profit floor.
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, "alpha", resp.Opportunities[0].Path.SourceVenue)
	assert.Equal(t, "beta", resp.Opportunities[0].Path.DestVenue)
}

func TestScanEndpointProfitFloor(t *testing.T) {
	router := scanRouter(t)

	w := postJSON(router, "/scan", gin.H{
		"venues":             []string{"alpha", "beta"},
		"assets":             []string{"USDT"},
		"bridge_asset":       "XRP",
		"max_amount":         1000,
		"min_profit_percent": 50.0,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Opportunities)
	assert.Equal(t, 2, resp.EvaluatedCount)
}

func TestScanEndpointRejectsBadRequests(t *testing.T) {
	router := scanRouter(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{"single venue", gin.H{"venues": []string{"alpha"}, "assets": []string{"USDT"}, "bridge_asset": "XRP", "max_amount": 1000}},
		{"no assets", gin.H{"venues": []string{"alpha", "beta"}, "assets": []string{}, "bridge_asset": "XRP", "max_amount": 1000}},
		{"missing bridge asset", gin.H{"venues": []string{"alpha", "beta"}, "assets": []string{"USDT"}, "max_amount": 1000}},
		{"zero amount", gin.H{"venues": []string{"alpha", "beta"}, "assets": []string{"USDT"}, "bridge_asset": "XRP", "max_amount": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, "/scan", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRotatorStatusWithoutRotator(t *testing.T) {
	router := scanRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/scanner/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running": false}`, w.Body.String())
}
