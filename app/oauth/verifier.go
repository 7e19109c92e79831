package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/config"

	"golang.org/x/oauth2"
)

const maxProfileBytes = 1 << 20

// ErrCredentialRejected means the provider refused the authorization code or access token.
var ErrCredentialRejected = errors.New("oauth credential rejected")

type profileDecoder func(body []byte) (*dto.OAuthIdentity, error)

type Option func(*Verifier)

// WithEndpoint overrides the provider's authorization and token URLs.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(v *Verifier) {
		v.config.Endpoint = endpoint
	}
}

func WithUserInfoURL(url string) Option {
	return func(v *Verifier) {
		v.userInfoURL = url
	}
}

// WithTokenInfoURL overrides where access tokens are checked for the client they were issued to.
func WithTokenInfoURL(url string) Option {
	return func(v *Verifier) {
		v.tokenInfo.url = url
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.httpClient = client
		}
	}
}

// tokenInfo describes the provider endpoint that reports which client an access token belongs to.
type tokenInfo struct {
	url      string
	request  func(ctx context.Context, url, accessToken string) (*http.Request, error)
	audience func(body []byte) (string, error)
	// expected is the client identity the token must carry. Empty disables the access token path.
	expected string
}

// Verifier exchanges a client credential for the provider's view of the user.
type Verifier struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	tokenInfo   tokenInfo
	httpClient  *http.Client
	decode      profileDecoder
}

func newVerifier(name string, cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, userInfoURL string, info tokenInfo, scopes []string, decode profileDecoder, opts ...Option) *Verifier {
	v := &Verifier{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
		tokenInfo:   info,
		httpClient:  http.DefaultClient,
		decode:      decode,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) Name() string {
	return v.name
}

func (v *Verifier) Verify(ctx context.Context, credential dto.OAuthCredential) (*dto.OAuthIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)

	token, err := v.token(ctx, credential)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := v.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s user info request: %w", v.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s user info returned %d", ErrCredentialRejected, v.name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s user info returned unexpected status %d", v.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("%s user info read: %w", v.name, err)
	}

	identity, err := v.decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s user info decode: %w", v.name, err)
	}
	if identity.SubjectID == "" {
		return nil, fmt.Errorf("%w: %s returned no subject", ErrCredentialRejected, v.name)
	}

	identity.Provider = v.name
	return identity, nil
}

func (v *Verifier) token(ctx context.Context, credential dto.OAuthCredential) (*oauth2.Token, error) {
	if credential.AccessToken != "" {
		if err := v.checkAudience(ctx, credential.AccessToken); err != nil {
			return nil, err
		}
		return &oauth2.Token{AccessToken: credential.AccessToken, TokenType: "Bearer"}, nil
	}
	if credential.AuthorizationCode == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrCredentialRejected)
	}

	token, err := v.config.Exchange(ctx, credential.AuthorizationCode)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s code exchange: %s", ErrCredentialRejected, v.name, retrieveErr.ErrorCode)
		}
		return nil, fmt.Errorf("%s code exchange: %w", v.name, err)
	}
	return token, nil
}

// checkAudience rejects access tokens that were issued to another client.
// Authorization codes need no such check since the exchange itself is bound to our client.
func (v *Verifier) checkAudience(ctx context.Context, accessToken string) error {
	if v.tokenInfo.expected == "" || v.tokenInfo.url == "" {
		return fmt.Errorf("%w: %s access tokens are not accepted", ErrCredentialRejected, v.name)
	}

	req, err := v.tokenInfo.request(ctx, v.tokenInfo.url, accessToken)
	if err != nil {
		return err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s token info request: %w", v.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s token info returned %d", ErrCredentialRejected, v.name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s token info returned unexpected status %d", v.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return fmt.Errorf("%s token info read: %w", v.name, err)
	}

	audience, err := v.tokenInfo.audience(body)
	if err != nil {
		return fmt.Errorf("%s token info decode: %w", v.name, err)
	}
	if audience != v.tokenInfo.expected {
		return fmt.Errorf("%w: %s access token was issued to another client", ErrCredentialRejected, v.name)
	}
	return nil
}

func bearerRequest(ctx context.Context, url, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return req, nil
}
