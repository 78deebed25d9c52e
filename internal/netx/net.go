// Package netx holds small networking helpers.
package netx

import (
	"context"
	"net/http"
	"time"
)

// EndpointReachable reports whether the HTTP endpoint accepts connections.
// Any response counts as reachable, including 4xx/5xx: an answering server
// that rejects the request is still online. Only transport-level failures
// (refused connection, DNS, timeout) report false.
func EndpointReachable(ctx context.Context, url string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
