package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "gosplit/domain/experiment"
	"gosplit/internal/errors"
)

func TestExecute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req TrialRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "t1", req.Task.ID.String())

		score := 0.7
		if req.Variant.ID == "b" {
			score = 0.9
		}
		_ = json.NewEncoder(w).Encode(domain.TrialOutcome{Success: true, Metrics: map[string]float64{"accuracy": score}})
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(srv.URL, 0, time.Second)
	out, err := exec.Execute(context.Background(), domain.Variant{ID: "b"}, domain.TaskContext{ID: "t1"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 0.9, out.Metrics["accuracy"])
}

func TestExecute_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPExecutor(srv.URL, 0, time.Second).Execute(context.Background(), domain.Variant{ID: "a"}, domain.TaskContext{ID: "t"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestExecute_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"metrics":{}}`))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(srv.URL, 0.5, time.Second)
	_, err := exec.Execute(context.Background(), domain.Variant{ID: "a"}, domain.TaskContext{ID: "t"})
	require.NoError(t, err)

	// the bucket is empty for the next two seconds
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = exec.Execute(ctx, domain.Variant{ID: "a"}, domain.TaskContext{ID: "t"})
	assert.Error(t, err)
}
