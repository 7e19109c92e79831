package types

import (
	"strings"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/app/entity"

	"github.com/labstack/echo/v4"
)

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
	NickName string `json:"nickname" validate:"required,min=2,max=30"`
}

func NewSignUpRequestFromContext(ctx echo.Context) (*SignUpRequest, error) {
	var body SignUpRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *SignUpRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.NickName = strings.TrimSpace(r.NickName)
	return validateStruct(r)
}

type SignUpResponse struct {
	MemberID uint64 `json:"member_id"`
	Email    string `json:"email"`
	NickName string `json:"nickname"`
}

func NewSignUpResponse(member *entity.Member) *SignUpResponse {
	return &SignUpResponse{
		MemberID: member.ID,
		Email:    member.Email,
		NickName: member.Nickname,
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return validateStruct(r)
}

// OAuthLoginRequest covers both /kakao and /oauth/:provider.
type OAuthLoginRequest struct {
	Provider          string `json:"-" param:"provider" validate:"required,max=32"`
	AuthorizationCode string `json:"authorization_code" validate:"required_without=AccessToken"`
	AccessToken       string `json:"access_token" validate:"required_without=AuthorizationCode"`
}

func NewOAuthLoginRequestFromContext(ctx echo.Context, provider string) (*OAuthLoginRequest, error) {
	var body OAuthLoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	if provider != "" {
		body.Provider = provider
	}

	return &body, nil
}

func (r *OAuthLoginRequest) Validate() error {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	return validateStruct(r)
}

func (r *OAuthLoginRequest) Credential() dto.OAuthCredential {
	return dto.OAuthCredential{
		AuthorizationCode: r.AuthorizationCode,
		AccessToken:       r.AccessToken,
	}
}

type ReissueRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func NewReissueRequestFromContext(ctx echo.Context) (*ReissueRequest, error) {
	var body ReissueRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ReissueRequest) Validate() error {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	return validateStruct(r)
}

type TokenResponse struct {
	GrantType             string `json:"grant_type"`
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	AccessTokenExpiresAt  int64  `json:"access_token_expires_at"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
}

func NewTokenResponse(pair *dto.TokenPair) *TokenResponse {
	return &TokenResponse{
		GrantType:             "Bearer",
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt.Unix(),
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt.Unix(),
	}
}

type FindEmailRequest struct {
	NickName string `query:"nickName" validate:"required,max=30"`
}

func NewFindEmailRequestFromContext(ctx echo.Context) (*FindEmailRequest, error) {
	return &FindEmailRequest{NickName: ctx.QueryParam("nickName")}, nil
}

func (r *FindEmailRequest) Validate() error {
	r.NickName = strings.TrimSpace(r.NickName)
	return validateStruct(r)
}

type FindEmailResponse struct {
	Email string `json:"email"`
}

type FindPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

func NewFindPasswordRequestFromContext(ctx echo.Context) (*FindPasswordRequest, error) {
	var body FindPasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *FindPasswordRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return validateStruct(r)
}

type CheckCodeRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code" validate:"required,numeric,max=12"`
}

func NewCheckCodeRequestFromContext(ctx echo.Context) (*CheckCodeRequest, error) {
	var body CheckCodeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *CheckCodeRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.Code = strings.TrimSpace(r.Code)
	return validateStruct(r)
}

type CheckCodeResponse struct {
	Verified bool `json:"verified"`
}

type ValidateTokenRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

func NewValidateTokenRequestFromContext(ctx echo.Context) (*ValidateTokenRequest, error) {
	var body ValidateTokenRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ValidateTokenRequest) Validate() error {
	r.AccessToken = strings.TrimSpace(r.AccessToken)
	return validateStruct(r)
}

type ValidateTokenResponse struct {
	Valid    bool   `json:"valid"`
	MemberID uint64 `json:"member_id,omitempty"`
	Email    string `json:"email,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
