// Package grpc carries the gate-resolved identity from HTTP handlers into
// backend tutoring services via gRPC metadata.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	ag "github.com/tutorhive/authgate"
)

// Default metadata keys for the propagated identity.
// These can be customized via Config if needed.
const (
	// DefaultMetadataKeyUserID is the default gRPC metadata key for the authenticated user ID
	DefaultMetadataKeyUserID = "x-user-id"

	// DefaultMetadataKeyRole is the default gRPC metadata key for the authenticated user's role
	DefaultMetadataKeyRole = "x-user-role"
)

// Config holds the metadata key configuration for identity propagation.
type Config struct {
	// MetadataKeyUserID is the gRPC metadata key for the authenticated user ID.
	// Defaults to "x-user-id".
	MetadataKeyUserID string

	// MetadataKeyRole is the gRPC metadata key for the authenticated user's
	// role. Defaults to "x-user-role".
	MetadataKeyRole string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyUserID: DefaultMetadataKeyUserID,
		MetadataKeyRole:   DefaultMetadataKeyRole,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
	if c.MetadataKeyRole == "" {
		c.MetadataKeyRole = DefaultMetadataKeyRole
	}
}

// IdentityToOutgoingContext adds the resolved identity to outgoing gRPC
// metadata. A nil identity leaves the context untouched so the backend sees
// the call as anonymous.
func IdentityToOutgoingContext(ctx context.Context, user *ag.Identity) context.Context {
	return IdentityToOutgoingContextWithConfig(ctx, user, nil)
}

// IdentityToOutgoingContextWithConfig adds the identity using the specified config.
func IdentityToOutgoingContextWithConfig(ctx context.Context, user *ag.Identity, config *Config) context.Context {
	if user == nil {
		return ctx
	}
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	return metadata.AppendToOutgoingContext(ctx,
		config.MetadataKeyUserID, user.ID,
		config.MetadataKeyRole, string(user.Role),
	)
}

// UserIDFromContext extracts the authenticated user ID from the gRPC context metadata.
// Returns empty string if no user is authenticated.
func UserIDFromContext(ctx context.Context) string {
	return UserIDFromContextWithConfig(ctx, nil)
}

// UserIDFromContextWithConfig extracts the authenticated user ID using the specified config.
func UserIDFromContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeyUserID); len(values) > 0 {
		return values[0]
	}
	return ""
}

// RoleFromContext extracts the propagated role from the gRPC context
// metadata. Returns empty if absent or not a known role.
func RoleFromContext(ctx context.Context) ag.Role {
	return RoleFromContextWithConfig(ctx, nil)
}

// RoleFromContextWithConfig extracts the role using the specified config.
func RoleFromContextWithConfig(ctx context.Context, config *Config) ag.Role {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(config.MetadataKeyRole)
	if len(values) == 0 {
		return ""
	}
	switch role := ag.Role(values[0]); role {
	case ag.RoleGuardian, ag.RoleChild:
		return role
	}
	return ""
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
