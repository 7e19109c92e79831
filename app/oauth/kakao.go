package oauth

import (
	"encoding/json"
	"strconv"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/config"

	"golang.org/x/oauth2/kakao"
)

const (
	ProviderKakao = "kakao"

	kakaoUserInfoURL  = "https://kapi.kakao.com/v2/user/me"
	kakaoTokenInfoURL = "https://kapi.kakao.com/v1/user/access_token_info"
)

type kakaoProfile struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email           string `json:"email"`
		IsEmailValid    bool   `json:"is_email_valid"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Profile         struct {
			Nickname string `json:"nickname"`
		} `json:"profile"`
	} `json:"kakao_account"`
	Properties struct {
		Nickname string `json:"nickname"`
	} `json:"properties"`
}

type kakaoTokenInfo struct {
	AppID int64 `json:"app_id"`
}

// NewKakaoVerifier accepts access tokens only when cfg.AppID is set and matches the token's app.
func NewKakaoVerifier(cfg config.OAuthProviderConfig, opts ...Option) *Verifier {
	info := tokenInfo{
		url:      kakaoTokenInfoURL,
		request:  bearerRequest,
		audience: decodeKakaoAppID,
		expected: cfg.AppID,
	}
	return newVerifier(ProviderKakao, cfg, kakao.Endpoint, kakaoUserInfoURL, info,
		[]string{"profile_nickname", "account_email"}, decodeKakaoProfile, opts...)
}

func decodeKakaoAppID(body []byte) (string, error) {
	var info kakaoTokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", err
	}
	if info.AppID == 0 {
		return "", nil
	}
	return strconv.FormatInt(info.AppID, 10), nil
}

func decodeKakaoProfile(body []byte) (*dto.OAuthIdentity, error) {
	var profile kakaoProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, err
	}

	identity := &dto.OAuthIdentity{Nickname: profile.KakaoAccount.Profile.Nickname}
	if profile.ID != 0 {
		identity.SubjectID = strconv.FormatInt(profile.ID, 10)
	}
	if identity.Nickname == "" {
		identity.Nickname = profile.Properties.Nickname
	}
	// Unverified addresses could be used to claim someone else's account.
	if profile.KakaoAccount.IsEmailValid && profile.KakaoAccount.IsEmailVerified {
		identity.Email = profile.KakaoAccount.Email
	}
	return identity, nil
}
