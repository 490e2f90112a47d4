// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const (
	clientIDKey contextKey = "client_id"
	userIDKey   contextKey = "user_id"
)

// SetClientID sets the client installation ID in the context
func SetClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// GetClientID retrieves the client installation ID from the context
func GetClientID(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(clientIDKey).(string)
	return clientID, ok
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// SetAuthContext sets both user and client ID in context
func SetAuthContext(ctx context.Context, userID, clientID string) context.Context {
	ctx = SetUserID(ctx, userID)
	ctx = SetClientID(ctx, clientID)
	return ctx
}
