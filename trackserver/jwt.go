// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth handles JWT authentication
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a new JWT authenticator
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
	}
}

// JWTClaims represents JWT claims for a signed-in playtrack client
type JWTClaims struct {
	ClientID string `json:"cid"` // installation/client ID
	jwt.RegisteredClaims
}

// GenerateToken generates a JWT token for one user on one client installation
func (j *JWTAuth) GenerateToken(userID, clientID string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "playtrack",
			Subject:   userID, // user ID goes in standard 'sub' claim
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.ClientID == "" {
			return nil, fmt.Errorf("missing cid (client ID) in token")
		}
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (user ID) in token")
		}
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// Claims extracts and validates the claims carried by an HTTP request.
func (j *JWTAuth) Claims(r *http.Request) (*JWTClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, fmt.Errorf("bearer token required")
	}

	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// GetUserID extracts the user ID from the JWT sub claim (implements
// ClientAuthenticator).
func (j *JWTAuth) GetUserID(r *http.Request) (string, error) {
	claims, err := j.Claims(r)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// GetClientID extracts the client installation ID from the cid claim
// (implements ClientAuthenticator).
func (j *JWTAuth) GetClientID(r *http.Request) (string, error) {
	claims, err := j.Claims(r)
	if err != nil {
		return "", err
	}
	return claims.ClientID, nil
}
