package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// TokenTypeAccess is the "typ" claim carried by access tokens.
const TokenTypeAccess = "access"

var (
	ErrSecretNotConfigured = errors.New("JWT secret not configured")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

// Identity is the caller decoded from an access token. Guests carry the table
// they checked in at and its admission token; staff accounts carry only
// subject and role.
type Identity struct {
	Subject     string
	Role        string
	TableNumber int
	GuestID     string
	TableToken  string
}

// Verifier validates HMAC-signed tokens issued by the auth collaborator.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// ParseAndValidateToken parses a JWT token string and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func (v *Verifier) ParseAndValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	if v == nil || v.secret == nil {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("invalid token type")
		}
	}
	return claims, nil
}

// Identify validates an access token and extracts the caller.
func (v *Verifier) Identify(tokenStr string) (*Identity, error) {
	claims, err := v.ParseAndValidateToken(tokenStr, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	id := &Identity{}
	id.Subject, _ = claims["sub"].(string)
	role, _ := claims["role"].(string)
	id.Role = strings.ToUpper(role)
	id.GuestID, _ = claims["guest_id"].(string)
	id.TableToken, _ = claims["table_token"].(string)
	if id.Subject == "" || id.Role == "" {
		return nil, fmt.Errorf("token is missing subject or role")
	}

	switch n := claims["table_number"].(type) {
	case float64:
		id.TableNumber = int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			id.TableNumber = parsed
		}
	}
	return id, nil
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
