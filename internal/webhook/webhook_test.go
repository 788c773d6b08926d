package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadmapper/api/internal/document"
)

type capture struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
	status   int
}

func (c *capture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, r)
	c.bodies = append(c.bodies, body)
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func testEvent() document.Event {
	return document.Event{
		RoadmapID:  "r1",
		ActorName:  "alice",
		Action:     "milestone.created",
		EntityType: "milestone",
		EntityID:   "m1",
		At:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDeliverSignsBody(t *testing.T) {
	rec := &capture{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d := NewDispatcher(time.Second)
	err := d.Deliver(context.Background(), Target{ID: "w1", URL: srv.URL, Secret: "s3cret"}, testEvent())
	require.NoError(t, err)

	require.Len(t, rec.requests, 1)
	req, body := rec.requests[0], rec.bodies[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "milestone.created", req.Header.Get(HeaderEvent))
	assert.NotEmpty(t, req.Header.Get(HeaderDelivery))
	assert.True(t, Verify("s3cret", body, req.Header.Get(HeaderSignature)))
	assert.False(t, Verify("other", body, req.Header.Get(HeaderSignature)))

	var delivery Delivery
	require.NoError(t, json.Unmarshal(body, &delivery))
	assert.Equal(t, req.Header.Get(HeaderDelivery), delivery.ID)
	assert.Equal(t, "m1", delivery.Event.EntityID)
}

func TestSignIsHexHMAC(t *testing.T) {
	// echo -n '{}' | openssl dgst -sha256 -hmac key
	assert.Equal(t, "sha256=a777724d943eb48dc69bca8a4a6d57a04db3f9ec7e1de4e581e860265bdf3032", Sign("key", []byte("{}")))
	assert.Equal(t, Sign("key", []byte("a")), Sign("key", []byte("a")))
	assert.NotEqual(t, Sign("key", []byte("a")), Sign("key", []byte("b")))
}

func TestDeliverReportsNon2xx(t *testing.T) {
	rec := &capture{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	err := NewDispatcher(time.Second).Deliver(context.Background(), Target{ID: "w1", URL: srv.URL}, testEvent())
	assert.ErrorContains(t, err, "responded 500")
}

func TestDispatchFansOutInBackground(t *testing.T) {
	rec := &capture{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	d := NewDispatcher(time.Second)
	d.Dispatch([]Target{
		{ID: "a", URL: srv.URL, Secret: "x"},
		{ID: "b", URL: failing.URL, Secret: "y"},
		{ID: "c", URL: srv.URL, Secret: "z"},
	}, testEvent())
	d.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.requests, 2)
}
