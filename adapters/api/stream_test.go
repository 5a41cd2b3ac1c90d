package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "gosplit/domain/experiment"
)

func TestSignalHub_RoutesByExperiment(t *testing.T) {
	hub := NewSignalHub(quiet)
	mine := hub.Subscribe("exp_1")
	all := hub.Subscribe("")
	other := hub.Subscribe("exp_2")

	hub.Emit(context.Background(), domain.Signal{Kind: domain.SignalQualityIssue, ExperimentID: "exp_1"})

	assert.Equal(t, domain.SignalQualityIssue, (<-mine).Kind)
	assert.Equal(t, domain.SignalQualityIssue, (<-all).Kind)
	assert.Empty(t, other)

	hub.Unsubscribe("exp_1", mine)
	assert.Equal(t, 0, hub.ClientCount("exp_1"))
	_, open := <-mine
	assert.False(t, open)

	// a second unsubscribe is a no-op
	hub.Unsubscribe("exp_1", mine)
}

func TestSignalHub_DropsWhenFull(t *testing.T) {
	hub := NewSignalHub(quiet)
	ch := hub.Subscribe("exp_1")
	for i := 0; i < cap(ch)+5; i++ {
		hub.Emit(context.Background(), domain.Signal{Kind: domain.SignalLowSampleSize, ExperimentID: "exp_1"})
	}
	assert.Len(t, ch, cap(ch))
}

func TestSignalHub_HandleSSE(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/signals/stream?experiment_id=exp_9", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.hub.ClientCount("exp_9") == 1 }, time.Second, 5*time.Millisecond)
	f.hub.Emit(context.Background(), domain.Signal{Kind: domain.SignalDurationExceeded, ExperimentID: "exp_9", Message: "too long"})

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if strings.Contains(line, "DURATION_EXCEEDED") {
			break
		}
	}
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "event:signal")
	assert.Contains(t, joined, "too long")

	cancel()
	require.Eventually(t, func() bool { return f.hub.ClientCount("exp_9") == 0 }, time.Second, 5*time.Millisecond)
}
