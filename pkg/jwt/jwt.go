package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried by service tokens.
const (
	RoleService = "service"
	RoleAdmin   = "admin"
)

const tokenTypeService = "service"

// Claims represents JWT claims structure
type Claims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Manager handles JWT operations
type Manager struct {
	secret string
	issuer string
}

// NewManager creates new JWT manager
func NewManager(secret, issuer string) *Manager {
	return &Manager{secret: secret, issuer: issuer}
}

// GenerateServiceToken signs a token for an internal caller (checkout,
// order admin) identified by subject.
func (m *Manager) GenerateServiceToken(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		Type: tokenTypeService,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secret))
}

// ValidateToken validates and parses token
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secret), nil
	}, opts...)

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// ValidateServiceToken validates service token specifically
func (m *Manager) ValidateServiceToken(tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Type != tokenTypeService {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", tokenTypeService, claims.Type)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}
