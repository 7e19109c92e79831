package dto

import "time"

// TokenPair is the result of a successful login or reissue.
type TokenPair struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	FamilyID              string
	Sequence              uint64
}

// OAuthCredential is what a client hands over after the provider's consent screen.
// Exactly one of the fields is expected to be set.
type OAuthCredential struct {
	AuthorizationCode string
	AccessToken       string
}

// OAuthIdentity is the verified external identity returned by a provider.
type OAuthIdentity struct {
	Provider  string
	SubjectID string
	Email     string
	Nickname  string
}

type ErrorResponse struct {
	Error string `json:"error"`
}
