package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadOnlyMiddlewareAllowsGet(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/desired-state", nil)
	w := httptest.NewRecorder()

	ReadOnlyMiddleware(next).ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadOnlyMiddlewareBlocksWrites(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached for write methods")
	})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/desired-state", nil)
		w := httptest.NewRecorder()

		ReadOnlyMiddleware(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code, "method %s should be blocked", method)
	}
}
