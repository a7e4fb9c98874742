package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeClass(t *testing.T) {
	assert.Equal(t, "error", codeClass(0))
	assert.Equal(t, "2xx", codeClass(200))
	assert.Equal(t, "3xx", codeClass(302))
	assert.Equal(t, "4xx", codeClass(429))
	assert.Equal(t, "5xx", codeClass(503))
}

func TestRecordersDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		IncCheckpoint(errors.New("disk full"))
		IncCheckpoint(nil)
		AddIdentifiers("followers", 3)
		IncThrottleEvent("abort")
		IncGovernorRequests()
		ObserveGovernorWait("jitter", 0)
		ObserveGovernorWait("window", time.Second)
		ObserveCollection("followees", "complete", time.Minute)
		ObserveStorage("snapshot", "save", time.Now())
		IncSourceRequest("friendships", 200)
	})
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0")
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
