package identity

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/jrsteele09/korebog/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// FlowTTL bounds how long a login redirect may take before the callback.
	FlowTTL = 10 * time.Minute

	DefaultRevocationURL = "https://oauth2.googleapis.com/revoke"

	googleScopePrefix = "https://www.googleapis.com/auth/"
)

var (
	_ session.Renewer = (*Client)(nil)
	_ session.Revoker = (*Client)(nil)
)

// ClientConfig holds the OAuth client registration.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	Issuer       string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// Endpoints are the provider URLs normally obtained from discovery.
type Endpoints struct {
	OAuth2        oauth2.Endpoint
	RevocationURL string
}

// Client talks to the OpenID Connect provider on behalf of the session store.
type Client struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	revokeURL  string
	httpClient *http.Client
	flows      FlowRepo
	nowTime    func() time.Time
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithFlowRepo(repo FlowRepo) ClientOption {
	return func(c *Client) {
		c.flows = repo
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient performs provider discovery and returns a ready client.
func NewClient(ctx context.Context, cfg ClientConfig, options ...ClientOption) (*Client, error) {
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrap(classifyTransport(err), "[NewClient] oidc.NewProvider")
	}

	var discovery struct {
		RevocationURL string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return nil, errors.Wrap(err, "[NewClient] discovery claims")
	}
	if discovery.RevocationURL == "" {
		discovery.RevocationURL = DefaultRevocationURL
	}

	endpoints := Endpoints{OAuth2: provider.Endpoint(), RevocationURL: discovery.RevocationURL}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewClientWithEndpoints(cfg, endpoints, verifier, options...)
}

// NewClientWithEndpoints builds a client without discovery.
func NewClientWithEndpoints(cfg ClientConfig, endpoints Endpoints, verifier *oidc.IDTokenVerifier, options ...ClientOption) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[NewClientWithEndpoints] client id is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewClientWithEndpoints] id token verifier is required")
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoints.OAuth2,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       ExpandScopes(cfg.Scopes),
		},
		verifier:   verifier,
		revokeURL:  endpoints.RevocationURL,
		httpClient: cfg.HTTPClient,
		flows:      NewInMemoryFlowRepo(),
		nowTime:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// ExpandScopes turns short Google API scope names into full scope URLs.
// "openid", "profile" and "email" are left alone.
func ExpandScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes)+1)
	hasOpenID := false
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			continue
		case s == oidc.ScopeOpenID:
			hasOpenID = true
		case s == "profile", s == "email", strings.Contains(s, "://"):
		default:
			s = googleScopePrefix + s
		}
		out = append(out, s)
	}
	if !hasOpenID {
		out = append([]string{oidc.ScopeOpenID}, out...)
	}
	return out
}

// WithRedirectURL returns a copy of the client that uses redirectURL and shares its flow state.
func (c *Client) WithRedirectURL(redirectURL string) *Client {
	cp := *c
	oauthCopy := *c.oauth
	oauthCopy.RedirectURL = redirectURL
	cp.oauth = &oauthCopy
	return &cp
}

// AuthCodeURL starts an interactive login. The consent screen is always shown so
// that a refresh credential is issued; loginHint preselects the account.
func (c *Client) AuthCodeURL(loginHint string) (string, string, error) {
	if n := c.flows.Purge(c.nowTime().Add(-FlowTTL)); n > 0 {
		c.logger.Debug().Int("flows", n).Msg("dropped abandoned login flows")
	}

	state := uuid.NewString()
	flow := &FlowState{
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        uuid.NewString(),
		LoginHint:    loginHint,
		CreatedAt:    c.nowTime(),
	}
	if err := c.flows.Upsert(state, flow); err != nil {
		return "", "", errors.Wrap(err, "[Client.AuthCodeURL] store flow")
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(flow.CodeVerifier),
		oidc.Nonce(flow.Nonce),
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return c.oauth.AuthCodeURL(state, opts...), state, nil
}

// Exchange completes a login started by AuthCodeURL.
func (c *Client) Exchange(ctx context.Context, code, state string) (session.Grant, error) {
	flow, err := c.flows.Get(state)
	if err != nil || flow == nil {
		return session.Grant{}, errors.Wrap(kerrors.ErrInvalidState, "[Client.Exchange]")
	}
	if err := c.flows.Delete(state); err != nil {
		return session.Grant{}, errors.Wrap(err, "[Client.Exchange] delete flow")
	}
	if c.nowTime().Sub(flow.CreatedAt) > FlowTTL {
		return session.Grant{}, errors.Wrap(kerrors.ErrInvalidState, "[Client.Exchange] login flow expired")
	}

	tok, err := c.oauth.Exchange(c.httpContext(ctx), code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		return session.Grant{}, errors.Wrap(classifyTokenError(err, kerrors.ErrNotAuthenticated), "[Client.Exchange] token exchange")
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return session.Grant{}, errors.Wrap(kerrors.ErrNotAuthenticated, "[Client.Exchange] no id_token in response")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return session.Grant{}, errors.Wrapf(kerrors.ErrNotAuthenticated, "[Client.Exchange] id token verification: %v", err)
	}

	var claims profileClaims
	if err := idToken.Claims(&claims); err != nil {
		return session.Grant{}, errors.Wrap(err, "[Client.Exchange] extract claims")
	}
	if claims.Nonce != flow.Nonce {
		return session.Grant{}, errors.Wrap(kerrors.ErrInvalidNonce, "[Client.Exchange]")
	}

	profile := claims.profile()
	c.logger.Info().Str("email", profile.Email).Msg("login completed")
	return session.Grant{
		AccessToken:  tok.AccessToken,
		ExpiresIn:    expiresIn(tok),
		RefreshToken: tok.RefreshToken,
		Profile:      &profile,
	}, nil
}

// Renew performs a refresh-token grant. Without a refresh credential the caller
// has to go through AuthCodeURL again with the login hint.
func (c *Client) Renew(ctx context.Context, hint session.RenewHint) (session.Grant, error) {
	if hint.RefreshToken == "" {
		return session.Grant{}, errors.Wrap(kerrors.ErrRenewUnavailable, "[Client.Renew] no refresh credential")
	}

	ts := c.oauth.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: hint.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		return session.Grant{}, errors.Wrap(classifyTokenError(err, kerrors.ErrRenewUnavailable), "[Client.Renew]")
	}

	grant := session.Grant{
		AccessToken: tok.AccessToken,
		ExpiresIn:   expiresIn(tok),
	}
	if tok.RefreshToken != hint.RefreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		if profile, err := c.parseRefreshedIDToken(raw); err != nil {
			c.logger.Warn().Err(err).Msg("ignoring refreshed id token")
		} else {
			grant.Profile = profile
		}
	}
	return grant, nil
}

// parseRefreshedIDToken reads the claims of an id_token that came directly from
// the token endpoint over TLS. Only the audience is checked.
func (c *Client) parseRefreshedIDToken(raw string) (*session.Profile, error) {
	var claims profileClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, err
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return nil, err
	}
	for _, a := range aud {
		if a == c.oauth.ClientID {
			profile := claims.profile()
			return &profile, nil
		}
	}
	return nil, errors.Errorf("audience %v does not contain client", aud)
}

// Revoke invalidates token at the provider.
func (c *Client) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[Client.Revoke] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client().Do(req)
	if err != nil {
		return errors.Wrap(classifyTransport(err), "[Client.Revoke]")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(kerrors.ErrRemoteRejected, "[Client.Revoke] status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) client() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func (c *Client) httpContext(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

type profileClaims struct {
	jwt.RegisteredClaims
	Nonce   string `json:"nonce"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

func (pc profileClaims) profile() session.Profile {
	return session.Profile{
		Subject:   pc.Subject,
		Name:      pc.Name,
		Email:     pc.Email,
		AvatarURL: pc.Picture,
	}
}

func expiresIn(tok *oauth2.Token) int {
	if tok.ExpiresIn > 0 {
		return int(tok.ExpiresIn)
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int(time.Until(tok.Expiry).Round(time.Second).Seconds())
}

// classifyTokenError maps a token endpoint refusal to rejected and a transport
// problem to ErrNetworkUnavailable.
func classifyTokenError(err error, rejected error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			return kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "token endpoint %d", re.Response.StatusCode)
		}
		return kerrors.Wrapf(rejected, "%s", re.ErrorCode)
	}
	return classifyTransport(err)
}

func classifyTransport(err error) error {
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return kerrors.Wrapf(kerrors.ErrNetworkUnavailable, "%v", err)
	}
	return err
}
