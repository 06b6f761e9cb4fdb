package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ewastePickup/internal/apperr"
	"ewastePickup/models"
)

// PrincipalResolver turns a bearer token into the caller's principal. Implementations
// reload the account so the stored role, not the token's claim, is authoritative.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, token string) (*models.Principal, error)
}

func allowSet(methods []string) map[string]struct{} {
	allow := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allow[strings.TrimSpace(m)] = struct{}{}
	}
	return allow
}

func authenticate(ctx context.Context, resolver PrincipalResolver) (context.Context, error) {
	tok, err := BearerFromMD(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "auth error: %v", err)
	}
	p, err := resolver.ResolvePrincipal(ctx, tok)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "auth error: %v", err)
	}
	return WithPrincipal(ctx, p), nil
}

// NewUnaryAuthInterceptor returns a gRPC unary interceptor that extracts and validates
// a Bearer token from incoming metadata and injects the Principal into the context.
// Methods listed in allowUnauthenticated bypass authentication (e.g., health checks, login).
func NewUnaryAuthInterceptor(resolver PrincipalResolver, allowUnauthenticated ...string) grpc.UnaryServerInterceptor {
	allow := allowSet(allowUnauthenticated)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		ctx, err := authenticate(ctx, resolver)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context { return s.ctx }

// NewStreamAuthInterceptor is the streaming counterpart of NewUnaryAuthInterceptor.
func NewStreamAuthInterceptor(resolver PrincipalResolver, allowUnauthenticated ...string) grpc.StreamServerInterceptor {
	allow := allowSet(allowUnauthenticated)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if _, ok := allow[info.FullMethod]; ok {
			return handler(srv, ss)
		}
		ctx, err := authenticate(ss.Context(), resolver)
		if err != nil {
			return err
		}
		return handler(srv, &principalStream{ServerStream: ss, ctx: ctx})
	}
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(ctx context.Context) (models.Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return models.Principal{}, apperr.Authentication("missing principal")
	}
	return *p, nil
}

// RequireRole ensures the principal holds one of roles.
func RequireRole(ctx context.Context, roles ...models.Role) (models.Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return p, err
	}
	for _, r := range roles {
		if p.Role == r {
			return p, nil
		}
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return p, apperr.Authorization("only %s can perform this action", strings.Join(names, " or "))
}

// RequireAdmin ensures the caller is an admin.
func RequireAdmin(ctx context.Context) (models.Principal, error) {
	return RequireRole(ctx, models.RoleAdmin)
}
