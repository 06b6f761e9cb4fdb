package grpcserver

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"ewastePickup/internal/auth"
	"ewastePickup/internal/identity"
)

// IdentityServer implements IdentityService. Register and Login are reachable
// without a token.
type IdentityServer struct {
	Identity *identity.Service
}

var _ IdentityServiceServer = (*IdentityServer)(nil)

func (s *IdentityServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var reg identity.Registration
	if err := fromStruct(in, &reg); err != nil {
		return nil, err
	}
	u, err := s.Identity.Register(ctx, reg)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"user": u})
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login accepts either email or username alongside the password.
func (s *IdentityServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req loginRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	id := req.Email
	if id == "" {
		id = req.Username
	}
	sess, err := s.Identity.Login(ctx, id, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(sess)
}

func (s *IdentityServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	u, err := s.Identity.Me(ctx, p)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"user": u})
}
