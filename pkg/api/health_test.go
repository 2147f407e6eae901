package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/fleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	hs := NewHealthServer(nil)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request succeeds", http.MethodGet, http.StatusOK},
		{"POST request fails", http.MethodPost, http.StatusMethodNotAllowed},
		{"PUT request fails", http.MethodPut, http.StatusMethodNotAllowed},
		{"DELETE request fails", http.MethodDelete, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			hs.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var response HealthResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				assert.NoError(t, err)
				assert.Equal(t, "healthy", response.Status)
				assert.NotZero(t, response.Timestamp)
			}
		})
	}
}

func TestReadyHandlerNoManager(t *testing.T) {
	hs := NewHealthServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	hs.readyHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response ReadyResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	assert.NoError(t, err)

	assert.Equal(t, "not ready", response.Status)
	assert.Contains(t, response.Checks["raft"], "not initialized")
	assert.Contains(t, response.Checks["state"], "not initialized")
	assert.NotEmpty(t, response.Message)
}

func TestReadyHandlerMethodValidation(t *testing.T) {
	hs := NewHealthServer(nil)

	tests := []struct {
		method         string
		expectedStatus int
	}{
		{http.MethodGet, http.StatusServiceUnavailable},
		{http.MethodPost, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/ready", nil)
			w := httptest.NewRecorder()

			hs.readyHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestDesiredStateHandlerRejectsWithoutManager(t *testing.T) {
	hs := NewHealthServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/desired-state", nil)
	w := httptest.NewRecorder()

	hs.desiredStateHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWorkloadStateHandlerMethodValidation(t *testing.T) {
	hs := NewHealthServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/workload-state", nil)
	w := httptest.NewRecorder()

	hs.workloadStateHandler(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWorkloadStateHandlerRejectsWithoutManager(t *testing.T) {
	hs := NewHealthServer(nil)

	body, err := json.Marshal(workloadStateReportBody{Name: "w1", State: types.ExecRunning})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workload-state", bytes.NewBuffer(body))
	w := httptest.NewRecorder()

	hs.workloadStateHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewHealthServerRoutes(t *testing.T) {
	hs := NewHealthServer(nil)

	assert.NotNil(t, hs)
	assert.NotNil(t, hs.mux)
	assert.Nil(t, hs.manager)

	tests := []struct {
		path           string
		expectedStatus int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
		{"/nonexistent", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			hs.mux.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Path: %s", tt.path)
		})
	}
}

func TestGetHandler(t *testing.T) {
	hs := NewHealthServer(nil)

	handler := hs.GetHandler()
	assert.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthServerConcurrency(t *testing.T) {
	hs := NewHealthServer(nil)

	done := make(chan bool, 20)

	for i := 0; i < 10; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			hs.healthHandler(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			w := httptest.NewRecorder()
			hs.readyHandler(w, req)
			assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, w.Code)
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		<-done
	}
}

func BenchmarkHealthHandler(b *testing.B) {
	hs := NewHealthServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		hs.healthHandler(w, req)
	}
}

func BenchmarkReadyHandler(b *testing.B) {
	hs := NewHealthServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		hs.readyHandler(w, req)
	}
}

func TestStartLocalServesGetAndBlocksWrites(t *testing.T) {
	hs := NewHealthServer(nil)
	socketPath := filepath.Join(t.TempDir(), "server.sock")

	go hs.StartLocal(socketPath)

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err, "socket never came up")

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
	}

	resp, err := client.Get("http://local/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Post("http://local/desired-state", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
