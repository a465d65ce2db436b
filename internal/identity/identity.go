// ABOUTME: Extracts the viewer's identity from a Draftroom platform JWT.
// ABOUTME: Claims-only parsing; signature verification is the server's job.

package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing required claim")
)

// Viewer is the identity of the person running this client. The controller
// uses it to recognize echoes of its own requests on the realtime feed.
type Viewer struct {
	ID   string
	Name string
}

// FromToken parses the platform-issued JWT and extracts the viewer identity
// from the "sub" and "name" claims. The signature is NOT verified here: the
// client never trusts tokens it did not receive from the platform, and the
// backend verifies on every request.
func FromToken(tokenString string) (*Viewer, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	name, _ := claims["name"].(string)
	return &Viewer{ID: sub, Name: name}, nil
}
