package grpc

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-member/app/service"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type memberIDKey struct{}

type accessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*service.Claims, error)
}

// AccessTokenUnaryInterceptor authenticates calls to the listed methods with the
// bearer token from the "authorization" metadata. Other methods pass through.
func AccessTokenUnaryInterceptor(validator accessTokenValidator, methods ...string) gogrpc.UnaryServerInterceptor {
	protected := make(map[string]struct{}, len(methods))
	for _, method := range methods {
		protected[FullMethod(method)] = struct{}{}
	}

	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		if _, ok := protected[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		token := incomingBearerToken(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(context.WithValue(ctx, memberIDKey{}, claims.MemberID), req)
	}
}

func MemberIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(memberIDKey{}).(uint64)
	return id, ok && id != 0
}

func incomingBearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	parts := strings.Fields(values[0])
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
