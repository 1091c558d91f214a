// Package tokenstore persists long-lived page access tokens. Tokens are
// written whenever a page token is exchanged or refreshed, and read whenever
// an inbound webhook event must act on behalf of a page without carrying a
// token of its own.
package tokenstore

import "context"

// PageToken is one stored page credential. UpdatedAt is Unix seconds of the
// last refresh.
type PageToken struct {
	PageID      string `dynamodbav:"page_id" json:"page_id"`
	AccessToken string `dynamodbav:"access_token" json:"access_token"`
	UpdatedAt   int64  `dynamodbav:"updated_at" json:"updated_at"`
}

// Store is the token persistence interface. Get returns (nil, nil) when no
// token is stored for the page; callers must treat absence as a normal
// outcome, not an error.
type Store interface {
	Get(ctx context.Context, pageID string) (*PageToken, error)
	Put(ctx context.Context, token PageToken) error
}
