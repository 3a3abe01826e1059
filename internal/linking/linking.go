// Package linking calls the external barcode-linking HTTP service and
// caches its results, so repeated scans of the same physical device
// within a session don't re-hit the external service (spec §4.5 point
// 4, §6).
package linking

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Client links a raw scanned barcode to its canonical linked value.
// Failures and timeouts return the original value unchanged — linking
// failures are never surfaced to the aggregator (spec §7).
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *lru.Cache[string, string]
}

// New builds a Client posting to baseURL
// (".../api/ProcessLock/FA/GetLinkData") with the given timeout and LRU
// cache size.
func New(baseURL string, timeout time.Duration, cacheSize int) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cache:      cache,
	}
}

type linkRequest struct {
	Barcode string `json:"barcode"`
}

type linkResponse struct {
	LinkedValue string `json:"linked_value"`
}

// Link returns the linked value for rawBarcode, or rawBarcode unchanged
// if the request fails, times out, or the service is not configured.
func (c *Client) Link(ctx context.Context, rawBarcode string) string {
	if c == nil || c.baseURL == "" || rawBarcode == "" {
		return rawBarcode
	}
	if cached, ok := c.cache.Get(rawBarcode); ok {
		return cached
	}

	body, err := json.Marshal(linkRequest{Barcode: rawBarcode})
	if err != nil {
		return rawBarcode
	}

	url := c.baseURL + "/api/ProcessLock/FA/GetLinkData"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return rawBarcode
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[linking] call failed for barcode, keeping raw value: %v", err)
		return rawBarcode
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[linking] unexpected status %d, keeping raw value", resp.StatusCode)
		return rawBarcode
	}

	var out linkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.LinkedValue == "" {
		return rawBarcode
	}

	c.cache.Add(rawBarcode, out.LinkedValue)
	return out.LinkedValue
}
