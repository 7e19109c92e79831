package controller

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the member API on g. requireAuth guards logout and
// limit is applied to the credential and code endpoints; either may be nil.
func (c *MemberController) RegisterRoutes(g *echo.Group, requireAuth, limit echo.MiddlewareFunc) {
	limited := middlewares(limit)

	g.POST("/signup", c.SignUp, limited...)
	g.POST("/login", c.Login, limited...)
	g.POST("/kakao", c.KakaoLogin, limited...)
	g.POST("/oauth/:provider", c.OAuthLogin, limited...)
	g.POST("/reissue", c.Reissue)
	g.GET("/find-id", c.FindID, limited...)
	g.POST("/find-password", c.FindPassword, limited...)
	g.POST("/check-code", c.CheckCode, limited...)
	g.POST("/validate-token", c.ValidateToken)
	g.POST("/logout", c.Logout, middlewares(requireAuth)...)
}

func middlewares(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}
