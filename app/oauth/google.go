package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/config"

	"golang.org/x/oauth2/endpoints"
)

const (
	ProviderGoogle = "google"

	googleUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

type googleProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
}

type googleTokenInfo struct {
	Audience string `json:"aud"`
}

// NewGoogleVerifier accepts access tokens only when their audience is cfg.ClientID.
func NewGoogleVerifier(cfg config.OAuthProviderConfig, opts ...Option) *Verifier {
	info := tokenInfo{
		url:      googleTokenInfoURL,
		request:  googleTokenInfoRequest,
		audience: decodeGoogleAudience,
		expected: cfg.ClientID,
	}
	return newVerifier(ProviderGoogle, cfg, endpoints.Google, googleUserInfoURL, info,
		[]string{"openid", "email", "profile"}, decodeGoogleProfile, opts...)
}

func googleTokenInfoRequest(ctx context.Context, endpoint, accessToken string) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("access_token", accessToken)
	u.RawQuery = query.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

func decodeGoogleAudience(body []byte) (string, error) {
	var info googleTokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", err
	}
	return info.Audience, nil
}

func decodeGoogleProfile(body []byte) (*dto.OAuthIdentity, error) {
	var profile googleProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, err
	}

	identity := &dto.OAuthIdentity{
		SubjectID: profile.Subject,
		Nickname:  profile.GivenName,
	}
	if identity.Nickname == "" {
		identity.Nickname = profile.Name
	}
	if profile.EmailVerified {
		identity.Email = profile.Email
	}
	return identity, nil
}
