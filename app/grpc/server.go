package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vibast-solutions/ms-go-member/app/oauth"
	"github.com/vibast-solutions/ms-go-member/app/service"
	"github.com/vibast-solutions/ms-go-member/app/types"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type MemberServer struct {
	memberService service.MemberAuthService
}

func NewMemberServer(memberService service.MemberAuthService) *MemberServer {
	return &MemberServer{memberService: memberService}
}

func (s *MemberServer) SignUp(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.SignUpRequest{}
	if err := decodeStruct(in, req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Signup validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	logrus.WithField("email", req.Email).Info("Signup request received (grpc)")
	member, err := s.memberService.SignUp(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Warn("Signup failed (grpc)")
		return nil, statusFor(err, "")
	}

	logrus.WithField("member_id", member.ID).Info("Member signed up (grpc)")
	return encodeStruct(types.NewSignUpResponse(member))
}

func (s *MemberServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.LoginRequest{}
	if err := decodeStruct(in, req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	pair, err := s.memberService.Login(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Warn("Login failed (grpc)")
		return nil, statusFor(err, "invalid credentials")
	}

	logrus.WithField("email", req.Email).Info("Member logged in (grpc)")
	return encodeStruct(types.NewTokenResponse(pair))
}

// OAuthLogin defaults to kakao when the request names no provider.
func (s *MemberServer) OAuthLogin(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.OAuthLoginRequest{}
	if err := decodeStruct(in, req); err != nil {
		return nil, err
	}
	req.Provider = stringField(in, "provider")
	if req.Provider == "" {
		req.Provider = oauth.ProviderKakao
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	pair, err := s.memberService.LoginWithOAuth(ctx, req.Provider, req.Credential())
	if err != nil {
		logrus.WithError(err).WithField("provider", req.Provider).Warn("OAuth login failed (grpc)")
		return nil, statusFor(err, "oauth login failed")
	}

	return encodeStruct(types.NewTokenResponse(pair))
}

func (s *MemberServer) Reissue(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.ReissueRequest{}
	if err := decodeStruct(in, req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	pair, err := s.memberService.ReissueToken(ctx, req.RefreshToken)
	if err != nil {
		logrus.WithError(err).Debug("Token reissue failed (grpc)")
		return nil, statusFor(err, "invalid or expired refresh token")
	}

	return encodeStruct(types.NewTokenResponse(pair))
}

func (s *MemberServer) FindID(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.FindEmailRequest{NickName: stringField(in, "nickname")}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	email, err := s.memberService.FindEmailByNickname(ctx, req.NickName)
	if err != nil {
		return nil, statusFor(err, "")
	}

	return encodeStruct(types.FindEmailResponse{Email: email})
}

func (s *MemberServer) FindPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.FindPasswordRequest{}
	if err := decodeStruct(in, req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if _, err := s.memberService.RequestPasswordReset(ctx, req.Email); err != nil && !errors.Is(err, service.ErrMemberNotFound) {
		logrus.WithError(err).WithField("email", req.Email).Error("Password reset request failed (grpc)")
		return nil, statusFor(err, "")
	}

	return structpb.NewStruct(map[string]any{"sent": true})
}

func (s *MemberServer) CheckCode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.CheckCodeRequest{}
	if err := decodeStruct(in, req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	verified, err := s.memberService.CheckResetCode(ctx, req.Email, req.Code)
	if err != nil {
		return nil, statusFor(err, "")
	}

	return encodeStruct(types.CheckCodeResponse{Verified: verified})
}

// Logout requires AccessTokenUnaryInterceptor to have authenticated the call.
func (s *MemberServer) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	memberID, ok := MemberIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	if err := s.memberService.Logout(ctx, memberID); err != nil {
		logrus.WithError(err).WithField("member_id", memberID).Error("Logout failed (grpc)")
		return nil, statusFor(err, "")
	}

	return encodeStruct(types.MessageResponse{Message: "logged out"})
}

func (s *MemberServer) ValidateToken(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.ValidateTokenRequest{}
	if err := decodeStruct(in, req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	claims, err := s.memberService.ValidateAccessToken(req.AccessToken)
	if err != nil {
		return encodeStruct(types.ValidateTokenResponse{Valid: false})
	}

	return encodeStruct(types.ValidateTokenResponse{
		Valid:    true,
		MemberID: claims.MemberID,
		Email:    claims.Email,
	})
}

func statusFor(err error, authMessage string) error {
	switch service.KindOf(err) {
	case service.ErrValidationFailed:
		return status.Error(codes.InvalidArgument, err.Error())
	case service.ErrConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case service.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	case service.ErrUnauthorized, service.ErrExpired, service.ErrReplayDetected:
		if authMessage == "" {
			authMessage = err.Error()
		}
		return status.Error(codes.Unauthenticated, authMessage)
	case service.ErrDependencyUnavailable:
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	default:
		logrus.WithError(err).Error("Unexpected error (grpc)")
		return status.Error(codes.Internal, "internal server error")
	}
}

func decodeStruct(in *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err = json.Unmarshal(raw, out); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	out := &structpb.Struct{}
	if err = protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

func stringField(in *structpb.Struct, name string) string {
	if in == nil {
		return ""
	}
	return in.GetFields()[name].GetStringValue()
}
