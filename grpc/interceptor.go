package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ag "github.com/tutorhive/authgate"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	// RoleRestricted maps full method names to the role they demand. A
	// request carrying a different role is rejected with PermissionDenied,
	// mirroring the route gate's role rule on the backend side.
	RoleRestricted map[string]ag.Role
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:         DefaultConfig(),
		RequireAuth:    true,
		PublicMethods:  make(map[string]bool),
		RoleRestricted: make(map[string]ag.Role),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig() *InterceptorConfig {
	config := DefaultInterceptorConfig()
	config.RequireAuth = false
	return config
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that enforces the
// propagated identity: unauthenticated calls to non-public methods are
// rejected, and role-restricted methods demand the matching role.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = normalizeConfig(config)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := checkAccess(ctx, config, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor with the same
// access checks as the unary one.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = normalizeConfig(config)

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkAccess(ss.Context(), config, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func normalizeConfig(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig()
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	return config
}

func checkAccess(ctx context.Context, config *InterceptorConfig, fullMethod string) error {
	userID := UserIDFromContextWithConfig(ctx, config.Config)

	if config.RequireAuth && !config.PublicMethods[fullMethod] {
		if userID == "" {
			return status.Error(codes.Unauthenticated, "authentication required")
		}
	}

	if required, ok := config.RoleRestricted[fullMethod]; ok {
		if RoleFromContextWithConfig(ctx, config.Config) != required {
			return status.Error(codes.PermissionDenied, "role not permitted for this method")
		}
	}

	return nil
}
