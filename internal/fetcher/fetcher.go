// Package fetcher sends requests to remote query endpoints with a bounded
// wait, per-host rate limiting and optional retries.
package fetcher

import (
	"context"
	"net/url"
)

// Fetcher defines the interface for posting queries to a remote API.
type Fetcher interface {
	// PostForm sends form as an url-encoded POST and returns the body of a
	// 200 response. Any other outcome is a *RequestError.
	PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error)
}
