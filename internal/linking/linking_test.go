package linking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinkReturnsLinkedValue(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(linkResponse{LinkedValue: "LINKED-123"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 16)
	got := c.Link(context.Background(), "RAW-123")
	assert.Equal(t, "LINKED-123", got)

	// second call for the same barcode should hit the cache, not the server
	got2 := c.Link(context.Background(), "RAW-123")
	assert.Equal(t, "LINKED-123", got2)
	assert.Equal(t, 1, calls)
}

func TestLinkFallsBackToRawOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 16)
	got := c.Link(context.Background(), "RAW-456")
	assert.Equal(t, "RAW-456", got)
}

func TestLinkUnconfiguredClientReturnsRaw(t *testing.T) {
	c := New("", time.Second, 16)
	got := c.Link(context.Background(), "RAW-789")
	assert.Equal(t, "RAW-789", got)
}

func TestLinkEmptyBarcodeShortCircuits(t *testing.T) {
	c := New("http://example.invalid", time.Second, 16)
	got := c.Link(context.Background(), "")
	assert.Equal(t, "", got)
}
