package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/app/middleware"
	"github.com/vibast-solutions/ms-go-member/app/oauth"
	"github.com/vibast-solutions/ms-go-member/app/service"
	"github.com/vibast-solutions/ms-go-member/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type MemberController struct {
	memberService service.MemberAuthService
}

func NewMemberController(memberService service.MemberAuthService) *MemberController {
	return &MemberController{memberService: memberService}
}

func (c *MemberController) SignUp(ctx echo.Context) error {
	req, err := types.NewSignUpRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind signup request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Signup validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Signup request received")
	member, err := c.memberService.SignUp(ctx.Request().Context(), req)
	if err != nil {
		logFailure(err, "Signup failed", logrus.Fields{"email": req.Email})
		return writeError(ctx, err, "")
	}

	logrus.WithFields(logrus.Fields{
		"member_id": member.ID,
		"email":     member.Email,
	}).Info("Member signed up")

	return ctx.JSON(http.StatusCreated, types.NewSignUpResponse(member))
}

func (c *MemberController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	pair, err := c.memberService.Login(ctx.Request().Context(), req)
	if err != nil {
		logFailure(err, "Login failed", logrus.Fields{"email": req.Email})
		return writeError(ctx, err, "invalid credentials")
	}

	logrus.WithField("email", req.Email).Info("Member logged in")
	return ctx.JSON(http.StatusCreated, types.NewTokenResponse(pair))
}

// KakaoLogin keeps the dedicated kakao route next to the generic provider route.
func (c *MemberController) KakaoLogin(ctx echo.Context) error {
	return c.oauthLogin(ctx, oauth.ProviderKakao)
}

func (c *MemberController) OAuthLogin(ctx echo.Context) error {
	return c.oauthLogin(ctx, ctx.Param("provider"))
}

func (c *MemberController) oauthLogin(ctx echo.Context, provider string) error {
	req, err := types.NewOAuthLoginRequestFromContext(ctx, provider)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind oauth login request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("provider", provider).Debug("OAuth login validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	pair, err := c.memberService.LoginWithOAuth(ctx.Request().Context(), req.Provider, req.Credential())
	if err != nil {
		logFailure(err, "OAuth login failed", logrus.Fields{"provider": req.Provider})
		return writeError(ctx, err, "oauth login failed")
	}

	logrus.WithField("provider", req.Provider).Info("Member logged in with oauth")
	return ctx.JSON(http.StatusCreated, types.NewTokenResponse(pair))
}

func (c *MemberController) Reissue(ctx echo.Context) error {
	req, err := types.NewReissueRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind reissue request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	pair, err := c.memberService.ReissueToken(ctx.Request().Context(), req.RefreshToken)
	if err != nil {
		logFailure(err, "Token reissue failed", nil)
		return writeError(ctx, err, "invalid or expired refresh token")
	}

	return ctx.JSON(http.StatusOK, types.NewTokenResponse(pair))
}

func (c *MemberController) FindID(ctx echo.Context) error {
	req, err := types.NewFindEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind find-id request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	email, err := c.memberService.FindEmailByNickname(ctx.Request().Context(), req.NickName)
	if err != nil {
		logFailure(err, "Find id failed", logrus.Fields{"nickname": req.NickName})
		return writeError(ctx, err, "")
	}

	return ctx.JSON(http.StatusOK, types.FindEmailResponse{Email: email})
}

// FindPassword answers true whether or not the email belongs to a member.
func (c *MemberController) FindPassword(ctx echo.Context) error {
	req, err := types.NewFindPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind find-password request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	_, err = c.memberService.RequestPasswordReset(ctx.Request().Context(), req.Email)
	if err != nil && !errors.Is(err, service.ErrMemberNotFound) {
		logFailure(err, "Password reset request failed", logrus.Fields{"email": req.Email})
		return writeError(ctx, err, "")
	}
	if err != nil {
		logrus.WithField("email", req.Email).Debug("Password reset requested for unknown email")
	} else {
		logrus.WithField("email", req.Email).Info("Password reset code sent")
	}

	return ctx.JSON(http.StatusCreated, true)
}

func (c *MemberController) CheckCode(ctx echo.Context) error {
	req, err := types.NewCheckCodeRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind check-code request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	verified, err := c.memberService.CheckResetCode(ctx.Request().Context(), req.Email, req.Code)
	if err != nil {
		logFailure(err, "Reset code check failed", logrus.Fields{"email": req.Email})
		return writeError(ctx, err, "")
	}

	return ctx.JSON(http.StatusCreated, types.CheckCodeResponse{Verified: verified})
}

// Logout revokes every token family of the authenticated member. Must run behind RequireAuth.
func (c *MemberController) Logout(ctx echo.Context) error {
	memberID, ok := middleware.MemberIDFromContext(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	if err := c.memberService.Logout(ctx.Request().Context(), memberID); err != nil {
		logFailure(err, "Logout failed", logrus.Fields{"member_id": memberID})
		return writeError(ctx, err, "")
	}

	logrus.WithField("member_id", memberID).Info("Member logged out")
	return ctx.JSON(http.StatusOK, types.MessageResponse{Message: "logged out"})
}

func (c *MemberController) ValidateToken(ctx echo.Context) error {
	req, err := types.NewValidateTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind validate-token request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	claims, err := c.memberService.ValidateAccessToken(req.AccessToken)
	if err != nil {
		return ctx.JSON(http.StatusOK, types.ValidateTokenResponse{Valid: false})
	}

	return ctx.JSON(http.StatusOK, types.ValidateTokenResponse{
		Valid:    true,
		MemberID: claims.MemberID,
		Email:    claims.Email,
	})
}
