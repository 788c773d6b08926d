// Package webhook delivers roadmap change events to subscriber URLs as
// signed JSON POSTs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"roadmapper/api/internal/document"
	"roadmapper/api/internal/util"
)

const (
	HeaderEvent     = "X-Roadmapper-Event"
	HeaderDelivery  = "X-Roadmapper-Delivery"
	HeaderSignature = "X-Roadmapper-Signature"
	signaturePrefix = "sha256="
)

// Target is one subscriber.
type Target struct {
	ID     string
	URL    string
	Secret string
}

// Delivery is the JSON body posted to a subscriber.
type Delivery struct {
	ID    string         `json:"id"`
	Event document.Event `json:"event"`
}

type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{client: &http.Client{Timeout: timeout}, timeout: timeout}
}

// Sign returns the hex HMAC-SHA256 of body under secret, prefixed "sha256=".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}

// Deliver posts one event to one target and waits for the response.
func (d *Dispatcher) Deliver(ctx context.Context, target Target, event document.Event) error {
	deliveryID := util.NewID()
	body, err := json.Marshal(Delivery{ID: deliveryID, Event: event})
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "roadmapper-webhook/1")
	req.Header.Set(HeaderEvent, event.Action)
	req.Header.Set(HeaderSignature, Sign(target.Secret, body))
	req.Header.Set(HeaderDelivery, deliveryID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", target.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s responded %d", target.ID, resp.StatusCode)
	}
	return nil
}

// Dispatch fans event out to every target in the background. Failures are
// logged and never retried.
func (d *Dispatcher) Dispatch(targets []Target, event document.Event) {
	for _, target := range targets {
		d.wg.Add(1)
		go func(target Target) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := d.Deliver(ctx, target, event); err != nil {
				log.Printf("webhook delivery failed roadmap=%s action=%s: %v", event.RoadmapID, event.Action, err)
			}
		}(target)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
