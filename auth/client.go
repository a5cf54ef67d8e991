// Package auth owns the credential session against the platform's anti-bot
// protected front end: the scraped form login, bearer token and
// cross-site-request-forgery cookie state, and per-subscription socket auth
// tokens. All other packages reach the platform through this session.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sub20hz/kickbot/telemetry"
)

// DefaultBaseURL is the platform front end all HTTP calls go to.
const DefaultBaseURL = "https://kick.com"

const xsrfCookieName = "XSRF-TOKEN"

// Client holds login state for one bot account. Create one per process, call
// Login once at startup, and share the client across components. The bearer
// token and user identity are either both set or both unset; no partial
// session state is ever observable.
type Client struct {
	Email    string
	Password string
	BaseURL  string
	HTTP     Transport
	Fallback BrowserFallback

	xsrf     string
	bearer   string
	userID   int
	username string
}

// NewClient returns a client using the default browser-header transport.
func NewClient(email, password string) *Client {
	return &Client{
		Email:    email,
		Password: password,
		BaseURL:  DefaultBaseURL,
		HTTP:     NewTransport(),
	}
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

// Do sends a request through the session transport. It satisfies the
// transport interfaces of the channel and moderation packages.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.HTTP.Do(req)
}

// Authorize decorates an outgoing request with the bearer token and
// cross-site-request-forgery header required on authenticated calls.
func (c *Client) Authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("X-Xsrf-Token", c.xsrf)
}

// Authenticated reports whether a login has completed.
func (c *Client) Authenticated() bool { return c.bearer != "" }

// UserID returns the bot account's numeric id, zero before login.
func (c *Client) UserID() int { return c.userID }

// Username returns the bot account's username, empty before login.
func (c *Client) Username() string { return c.username }

// Login authenticates the bot account. It fetches the login-form token triple
// (escalating once to the headless-browser fallback when the plain transport
// is blocked), submits the login request, and resolves the account identity.
// Any failure is an *Error; none of the steps are retried.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "auth-client", "login")
	defer span.End()
	if err := c.login(ctx); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

func (c *Client) login(ctx context.Context) error {
	slog.Info("logging bot account in")
	tokens, err := c.fetchLoginTokens(ctx)
	if err != nil {
		return err
	}
	if !tokens.complete() {
		return &Error{Kind: KindTokenParse}
	}
	slog.Debug("login tokens parsed, sending login request")

	bearer, err := c.submitLogin(ctx, tokens)
	if err != nil {
		return err
	}

	id, name, err := c.fetchUserInfo(ctx, bearer)
	if err != nil {
		return err
	}
	c.bearer = bearer
	c.userID = id
	c.username = name
	slog.Info("login successful", slog.String("username", name), slog.Int("user_id", id))
	return nil
}

// fetchLoginTokens requests the token-provider endpoint through the plain
// transport. A transport-level or decode-level failure there is read as an
// anti-bot block and escalates once to the browser fallback.
func (c *Client) fetchLoginTokens(ctx context.Context) (*LoginTokens, error) {
	tokens, err := c.requestTokenProvider(ctx)
	if err == nil {
		return tokens, nil
	}
	if c.Fallback == nil {
		return nil, &Error{Kind: KindAntiBotBlocked, err: err}
	}
	slog.Warn("token provider blocked, escalating to browser fallback", slog.Any("err", err))
	tokens, cookies, ferr := c.Fallback.FetchLoginTokens(ctx)
	if ferr != nil {
		return nil, &Error{Kind: KindAntiBotBlocked, err: ferr}
	}
	base, perr := url.Parse(c.baseURL())
	if perr != nil {
		return nil, &Error{Kind: KindAntiBotBlocked, err: perr}
	}
	c.HTTP.SetCookies(base, cookies)
	for _, ck := range cookies {
		if ck.Name == xsrfCookieName {
			c.xsrf = ck.Value
		}
	}
	slog.Info("browser fallback returned login tokens")
	return tokens, nil
}

func (c *Client) requestTokenProvider(ctx context.Context) (*LoginTokens, error) {
	// Warm-up fetch of the site root so the initial cookie set exists before
	// the token provider is hit; the original flow does the same.
	warm, err := c.get(ctx, "/")
	if err != nil {
		return nil, err
	}
	drain(warm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/kick-token-provider", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", c.baseURL()+"/")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	c.captureXSRF(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token provider status %s", resp.Status)
	}
	var tokens LoginTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode token provider response: %w", err)
	}
	return &tokens, nil
}

// submitLogin posts the credentials with the form tokens and returns the
// bearer token. Response status picks the failure kind.
func (c *Client) submitLogin(ctx context.Context, tokens *LoginTokens) (string, error) {
	payload := map[string]any{
		tokens.NameFieldName:  "",
		tokens.TokenFieldName: tokens.EncryptedToken,
		"email":               c.Email,
		"isMobileRequest":     true,
		"password":            c.Password,
	}
	resp, err := c.postJSON(ctx, "/mobile/login", payload, false)
	if err != nil {
		return "", &Error{Kind: KindUnexpected, err: err}
	}
	defer closeBody(resp)
	c.captureXSRF(resp)

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		var login struct {
			Token     string `json:"token"`
			TwoFactor bool   `json:"2fa_required"`
		}
		if err := json.Unmarshal(body, &login); err != nil {
			return "", &Error{Kind: KindUnexpected, Status: resp.StatusCode, err: err}
		}
		if login.TwoFactor {
			return "", &Error{Kind: KindTwoFactorRequired}
		}
		// A 200 without a token would leave the session half-built.
		if login.Token == "" {
			return "", &Error{Kind: KindUnexpected, Status: resp.StatusCode, Body: string(body)}
		}
		return login.Token, nil
	case http.StatusUnprocessableEntity:
		return "", &Error{Kind: KindLoginRejected, Status: resp.StatusCode, Body: string(body)}
	case 419:
		return "", &Error{Kind: KindCSRFInvalid, Status: resp.StatusCode, Body: string(body)}
	case http.StatusForbidden:
		return "", &Error{Kind: KindAntiBotBlocked, Status: resp.StatusCode, Body: string(body)}
	default:
		return "", &Error{Kind: KindUnexpected, Status: resp.StatusCode, Body: string(body)}
	}
}

func (c *Client) fetchUserInfo(ctx context.Context, bearer string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/api/v1/user", nil)
	if err != nil {
		return 0, "", &Error{Kind: KindUserInfo, err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("X-Xsrf-Token", c.xsrf)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, "", &Error{Kind: KindUserInfo, err: err}
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return 0, "", &Error{Kind: KindUserInfo, Status: resp.StatusCode}
	}
	var user struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return 0, "", &Error{Kind: KindUserInfo, err: err}
	}
	return user.ID, user.Username, nil
}

// SocketAuthToken fetches the subscription auth token for a private realtime
// channel. The platform refreshes session cookies as a side effect of this
// call; the refresh is picked up silently from the response.
func (c *Client) SocketAuthToken(ctx context.Context, socketID, channelName string) (string, error) {
	payload := map[string]any{
		"socket_id":    socketID,
		"channel_name": channelName,
	}
	resp, err := c.postJSON(ctx, "/broadcasting/auth", payload, true)
	if err != nil {
		return "", &Error{Kind: KindSocketAuth, err: err}
	}
	defer closeBody(resp)
	c.captureXSRF(resp)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &Error{Kind: KindSocketAuth, Status: resp.StatusCode, Body: string(body)}
	}
	var out struct {
		Auth string `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Kind: KindSocketAuth, err: err}
	}
	return out.Auth, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	return c.HTTP.Do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, authorized bool) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Xsrf-Token", c.xsrf)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	return c.HTTP.Do(req)
}

// captureXSRF picks up a rotated cross-site-request-forgery cookie from a
// response. Responses without the cookie leave the current token in place.
func (c *Client) captureXSRF(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name == xsrfCookieName && ck.Value != "" {
			c.xsrf = ck.Value
		}
	}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	closeBody(resp)
}
