// provider.go -- OAuth provider interface and shared types.
package oauth

import "context"

// Profile is the normalized identity an OAuth provider returns after a verified exchange.
// Never built from client-supplied values.
type Profile struct {
	ProviderID    string // provider-specific stable user ID (Google "sub")
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string // provider-hosted avatar, empty when not shared
}

// Provider is an OAuth2 identity provider.
// PKCE (RFC 7636) is required: callers pass the code_challenge to AuthCodeURL and the
// matching code_verifier to Exchange.
type Provider interface {
	// Name returns the provider identifier used in logs.
	Name() string

	// AuthCodeURL returns the redirect URL with state and PKCE code_challenge embedded.
	AuthCodeURL(state, codeChallenge string) string

	// Exchange trades the authorization code for a verified profile.
	// The code_verifier must match the code_challenge passed to AuthCodeURL.
	Exchange(ctx context.Context, code, codeVerifier string) (*Profile, error)
}
