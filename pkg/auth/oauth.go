package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every request made by clients from NewClient.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client that sends token as a bearer token. The
// token is a personal API token, so there is no refresh flow.
func NewClient(ctx context.Context, token string) (*http.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("no API token configured")
	}
	// oauth2 builds its transport on top of the client found in the context
	base := &http.Client{Timeout: DefaultTimeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = DefaultTimeout
	return client, nil
}
