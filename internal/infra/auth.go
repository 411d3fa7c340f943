package infra

import "context"

// VerifiedToken is what a TokenVerifier hands to the HTTP and websocket layers.
// Claims carries at least "role" when the issuer sets one.
type VerifiedToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier is implemented by the Firebase verifier and by JWTManager.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*VerifiedToken, error)
}
