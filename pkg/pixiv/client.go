package pixiv

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"pixivcrawl/pkg/errors"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/ratelimit"
)

// ClientOptions configures a Client
type ClientOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration // ignored when HTTPClient is set
	UserAgent  string
	AuthURL    string
	APIBaseURL string
	Limiter    ratelimit.Limiter
}

// Client talks to the pixiv app API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	authURL    string
	apiBaseURL string
	oauth      *oauth2.Config
	limiter    ratelimit.Limiter
	logger     logger.Logger
	now        func() time.Time

	mu           sync.Mutex
	api          *http.Client
	refreshToken string
	user         AuthUser
}

// NewClient creates a new pixiv API client
func NewClient(opts ClientOptions, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.AuthURL == "" {
		opts.AuthURL = AuthURL
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = APIBaseURL
	}

	c := &Client{
		headers: map[string]string{
			"User-Agent":      opts.UserAgent,
			"App-OS":          "ios",
			"App-OS-Version":  "14.6",
			"Accept-Language": "en-US",
		},
		authURL:    opts.AuthURL,
		apiBaseURL: opts.APIBaseURL,
		oauth: &oauth2.Config{
			ClientID:     ClientID,
			ClientSecret: ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.AuthURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		limiter: opts.Limiter,
		logger:  log.WithField("component", "pixiv"),
		now:     time.Now,
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	c.httpClient = &http.Client{
		Transport:     &appTransport{base: transport, client: c},
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
	return c
}

// appTransport stamps every request with the app headers. Token requests
// also carry X-Client-Time and X-Client-Hash.
type appTransport struct {
	base   http.RoundTripper
	client *Client
}

func (t *appTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, value := range t.client.headers {
		req.Header.Set(key, value)
	}
	if req.Method == http.MethodPost {
		for key, value := range t.client.clientHashHeaders() {
			req.Header.Set(key, value)
		}
	}
	return t.base.RoundTrip(req)
}

// rotationSource remembers every token its source hands out, so a refresh
// token rotated during an automatic refresh is not lost
type rotationSource struct {
	src    oauth2.TokenSource
	client *Client
}

func (r *rotationSource) Token() (*oauth2.Token, error) {
	token, err := r.src.Token()
	if err != nil {
		return nil, err
	}
	r.client.remember(token)
	return token, nil
}

// User returns the account of the current token
func (c *Client) User() AuthUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// RefreshToken returns the refresh token currently in use. pixiv may rotate
// it on every authentication.
func (c *Client) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshToken
}

// oauthContext makes the oauth2 package send its requests through the app
// transport
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Authenticate exchanges a refresh token for an access token. Later API calls
// go through an oauth2 client that refreshes the access token when it
// expires.
func (c *Client) Authenticate(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, errors.New(errors.ErrorTypeAuth, "refresh token is required")
	}

	token, err := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, c.tokenError(ctx, err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	// Automatic refreshes happen long after this call returns
	background := c.oauthContext(context.WithoutCancel(ctx))
	source := oauth2.ReuseTokenSource(token, &rotationSource{
		src:    c.oauth.TokenSource(background, token),
		client: c,
	})
	api := oauth2.NewClient(background, source)
	api.Timeout = c.httpClient.Timeout

	c.mu.Lock()
	c.api = api
	c.mu.Unlock()
	c.remember(token)

	auth := &AuthResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		User:         c.User(),
	}
	if !token.Expiry.IsZero() {
		auth.ExpiresIn = int(time.Until(token.Expiry).Seconds())
	}

	c.logger.InfoWithFields("Authenticated with pixiv", map[string]interface{}{
		"user_id": auth.User.ID,
		"account": auth.User.Account,
	})

	return auth, nil
}

// remember records the refresh token and user carried by token
func (c *Client) remember(token *oauth2.Token) {
	user := userFromToken(token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token.RefreshToken != "" {
		c.refreshToken = token.RefreshToken
	}
	if user.ID != "" || user.Account != "" {
		c.user = user
	}
}

// userFromToken decodes the "user" object pixiv returns next to the token
func userFromToken(token *oauth2.Token) AuthUser {
	var user AuthUser
	raw, ok := token.Extra("user").(map[string]interface{})
	if !ok {
		return user
	}
	if data, err := json.Marshal(raw); err == nil {
		_ = json.Unmarshal(data, &user)
	}
	return user
}

// tokenError maps a failed token request to a typed error
func (c *Client) tokenError(ctx context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		e := errors.Wrap(errors.ErrorTypeAuth, err, fmt.Sprintf("authentication rejected: %s", preview(retrieveErr.Body)))
		if retrieveErr.Response != nil {
			e.Code = retrieveErr.Response.StatusCode
		}
		return e
	}
	if ctx.Err() != nil || strings.Contains(err.Error(), "cannot fetch token") {
		return errors.Wrap(errors.ErrorTypeNetwork, err, "token request failed")
	}
	return errors.Wrap(errors.ErrorTypeAuth, err, "invalid token response")
}

// clientHashHeaders returns the X-Client-Time and X-Client-Hash headers the
// token endpoint requires
func (c *Client) clientHashHeaders() map[string]string {
	clientTime := c.now().UTC().Format("2006-01-02T15:04:05+00:00")
	sum := md5.Sum([]byte(clientTime + HashSecret))
	return map[string]string{
		"X-Client-Time": clientTime,
		"X-Client-Hash": hex.EncodeToString(sum[:]),
	}
}

// SearchIllust fetches the first page of results for word
func (c *Client) SearchIllust(ctx context.Context, word string, opts SearchOptions) (*SearchIllustResponse, error) {
	if !IsValidKeyword(word) {
		return nil, errors.New(errors.ErrorTypeUnknown, "search keyword is empty")
	}

	searchURL := GetSearchIllustURL(c.apiBaseURL, word, opts)
	c.logger.DebugWithFields("searching illustrations", map[string]interface{}{
		"word": word,
		"url":  searchURL,
	})

	var response SearchIllustResponse
	if err := c.GetJSON(ctx, searchURL, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Next fetches the page a previous response's next_url points at
func (c *Client) Next(ctx context.Context, nextURL string) (*SearchIllustResponse, error) {
	var response SearchIllustResponse
	if err := c.GetJSON(ctx, nextURL, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetJSON performs an authenticated GET and decodes the JSON body into target.
// An access token the API rejects before its expiry forces one refresh and
// the request is repeated.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target interface{}) error {
	err := c.getJSON(ctx, rawURL, target)
	if err == nil || !errors.IsType(err, errors.ErrorTypeAuth) {
		return err
	}

	refreshToken := c.RefreshToken()
	if refreshToken == "" {
		return err
	}

	c.logger.WarnWithFields("Access token rejected, re-authenticating", map[string]interface{}{
		"url": rawURL,
	})
	if _, authErr := c.Authenticate(ctx, refreshToken); authErr != nil {
		return authErr
	}
	return c.getJSON(ctx, rawURL, target)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, target interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(errors.ErrorTypeRateLimit, err, "interrupted while waiting for rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}

	c.mu.Lock()
	client := c.api
	c.mu.Unlock()
	if client == nil {
		client = c.httpClient
	}

	resp, err := c.doRequest(ctx, client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read response body")
	}

	if err := c.checkResponseStatus(resp, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview(body),
		})
		e := errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse JSON")
		e.Code = resp.StatusCode
		return e
	}

	return nil
}

// doRequest sends req with client
func (c *Client) doRequest(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) {
			return nil, c.tokenError(ctx, retrieveErr)
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "request failed")
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

// checkResponseStatus maps an API status code to a typed error
func (c *Client) checkResponseStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	message := apiErr.Text()
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	errorType := errors.ErrorTypeUnknown
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		errorType = errors.ErrorTypeAuth
	case resp.StatusCode == http.StatusBadRequest && isTokenError(message):
		errorType = errors.ErrorTypeAuth
	case resp.StatusCode == http.StatusNotFound:
		errorType = errors.ErrorTypeNotFound
	case resp.StatusCode == http.StatusTooManyRequests || strings.Contains(message, "Rate Limit"):
		errorType = errors.ErrorTypeRateLimit
	case resp.StatusCode >= 500:
		errorType = errors.ErrorTypeServerError
	case resp.StatusCode < 400:
		return nil
	}

	e := errors.New(errorType, message)
	e.Code = resp.StatusCode
	return e
}

// isTokenError reports whether an error message means the access token has
// expired or is invalid
func isTokenError(message string) bool {
	for _, marker := range []string{"invalid_grant", "OAuth", "invalid_token"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
