package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/retry"
)

// Error types for Instagram API operations
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypePrivate     ErrorType = "private"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an Instagram API error
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("instagram %s error (code %d): %s", e.Type, e.Code, e.Message)
}

// ErrorKind places the error in the engine's taxonomy
func (e *Error) ErrorKind() errs.Kind {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeServerError:
		return errs.KindTransient
	case ErrorTypeRateLimit:
		return errs.KindThrottled
	case ErrorTypeAuth, ErrorTypePrivate, ErrorTypeNotFound:
		return errs.KindAccess
	default:
		return errs.KindUnknown
	}
}

// Session carries the cookies of a logged-in web session
type Session struct {
	Username  string
	SessionID string
	CSRFToken string
	UserID    string
}

// MinRequestsPerSecond is the floor slowDown stops at
const MinRequestsPerSecond = 0.05

// Options configure a Client
type Options struct {
	BaseURL           string
	UserAgent         string
	AppID             string
	Timeout           time.Duration
	MaxAttempts       int
	PageSize          int
	RequestsPerSecond float64
	// RetryInterval is the first backoff delay between attempts
	RetryInterval time.Duration
}

// OptionsFromConfig maps the source section of the configuration
func OptionsFromConfig(cfg config.SourceConfig) Options {
	return Options{
		BaseURL:           cfg.BaseURL,
		UserAgent:         cfg.UserAgent,
		AppID:             cfg.AppID,
		Timeout:           cfg.Timeout,
		MaxAttempts:       cfg.MaxAttempts,
		PageSize:          cfg.PageSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// Client talks to Instagram's web API and serves as the collector's source
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	pageSize   int
	limiter    *ratelimit.TokenBucket
	retry      *retry.Config
	logger     logger.Logger

	mu  sync.Mutex
	ids map[string]string
}

// NewClient creates a new Instagram API client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	headers := map[string]string{
		"Accept":           "*/*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-Requested-With": "XMLHttpRequest",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if opts.AppID != "" {
		headers["X-IG-App-ID"] = opts.AppID
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = opts.MaxAttempts
	retryCfg.Logger = log
	if opts.RetryInterval > 0 {
		retryCfg.InitialInterval = opts.RetryInterval
		retryCfg.MaxInterval = 10 * opts.RetryInterval
	}

	c := &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		headers:    headers,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		pageSize:   opts.PageSize,
		retry:      retryCfg,
		logger:     log.WithField("component", "instagram"),
		ids:        make(map[string]string),
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = ratelimit.NewTokenBucket(opts.RequestsPerSecond, 1)
	}
	return c
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetSession authenticates subsequent requests with a web session
func (c *Client) SetSession(s *Session) {
	if s == nil || s.SessionID == "" {
		return
	}
	cookies := []string{"sessionid=" + s.SessionID}
	if s.CSRFToken != "" {
		cookies = append(cookies, "csrftoken="+s.CSRFToken)
		c.SetHeader("X-CSRFToken", s.CSRFToken)
	}
	if s.UserID != "" {
		cookies = append(cookies, "ds_user_id="+s.UserID)
	}
	c.SetHeader("Cookie", strings.Join(cookies, "; "))
}

// doRequest performs a single GET with the configured headers
func (c *Client) doRequest(ctx context.Context, endpoint, url string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Type: ErrorTypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	c.mu.Lock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	c.mu.Unlock()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.IncSourceRequest(endpoint, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &Error{Type: ErrorTypeNetwork, Message: fmt.Sprintf("network error: %v", err)}
	}

	metrics.IncSourceRequest(endpoint, resp.StatusCode)
	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// getJSON fetches url and decodes the body into target, retrying transient
// failures
func (c *Client) getJSON(ctx context.Context, endpoint, url string, target interface{}) error {
	return retry.Do(ctx, func() error {
		resp, err := c.doRequest(ctx, endpoint, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &Error{Type: ErrorTypeNetwork, Message: fmt.Sprintf("failed to read response body: %v", err), Code: resp.StatusCode}
		}
		if err := c.checkResponseStatus(resp.StatusCode, endpoint, body); err != nil {
			return err
		}

		if err := json.Unmarshal(body, target); err != nil {
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"endpoint":     endpoint,
				"error":        err.Error(),
				"body_preview": preview(body),
			})
			return &Error{Type: ErrorTypeParsing, Message: fmt.Sprintf("failed to parse JSON: %v", err), Code: resp.StatusCode}
		}
		return nil
	}, c.retry)
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// apiMessage extracts the "message" field Instagram puts on failures
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		return payload.Message
	}
	return ""
}

// slowDown halves the client side request rate after the upstream pushed
// back, down to MinRequestsPerSecond
func (c *Client) slowDown() {
	if c.limiter == nil {
		return
	}
	current := c.limiter.Limit()
	if current <= MinRequestsPerSecond {
		return
	}
	lowered := current / 2
	if lowered < MinRequestsPerSecond {
		lowered = MinRequestsPerSecond
	}
	c.limiter.UpdateLimits(lowered, 1)
	c.logger.InfoWithFields("lowered request rate", map[string]interface{}{
		"from_rps": current,
		"to_rps":   lowered,
	})
}

// checkResponseStatus maps a status code and body to a typed error
func (c *Client) checkResponseStatus(code int, endpoint string, body []byte) error {
	if code < 400 {
		return nil
	}

	msg := apiMessage(body)
	fields := map[string]interface{}{"status": code, "endpoint": endpoint}
	if msg != "" {
		fields["message"] = msg
	}

	switch {
	case code == http.StatusTooManyRequests || errs.IsThrottleMessage(msg):
		c.logger.WarnWithFields("rate limit exceeded", fields)
		c.slowDown()
		if msg == "" {
			msg = "rate limit exceeded"
		}
		return &Error{Type: ErrorTypeRateLimit, Message: msg, Code: code}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return &Error{Type: ErrorTypeAuth, Message: "authentication required", Code: code}
	case code == http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		return &Error{Type: ErrorTypeNotFound, Message: "resource not found", Code: code}
	case retry.IsRetryableStatus(code):
		c.logger.ErrorWithFields("server error", fields)
		return &Error{Type: ErrorTypeServerError, Message: "server error", Code: code}
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
		if msg == "" {
			msg = fmt.Sprintf("unexpected status code: %d", code)
		}
		return &Error{Type: ErrorTypeUnknown, Message: msg, Code: code}
	}
}

// FetchUserProfile fetches the profile of username and caches its numeric id
func (c *Client) FetchUserProfile(ctx context.Context, username string) (*User, error) {
	var response ProfileResponse
	if err := c.getJSON(ctx, "profile", ProfileURL(c.baseURL, username), &response); err != nil {
		if igErr, ok := err.(*Error); ok && igErr.Type == ErrorTypeNotFound {
			return nil, &Error{Type: ErrorTypeNotFound, Message: fmt.Sprintf("user %s not found", username), Code: igErr.Code}
		}
		return nil, err
	}

	if response.RequiresToLogin {
		return nil, &Error{
			Type:    ErrorTypeAuth,
			Message: "Instagram requires authentication to view this profile",
			Code:    http.StatusUnauthorized,
		}
	}
	if response.Data.User == nil || response.Data.User.ID == "" {
		return nil, &Error{Type: ErrorTypeNotFound, Message: fmt.Sprintf("user %s not found", username), Code: http.StatusNotFound}
	}

	c.mu.Lock()
	c.ids[username] = response.Data.User.ID
	c.mu.Unlock()
	return response.Data.User, nil
}

func (c *Client) userID(ctx context.Context, username string) (string, error) {
	c.mu.Lock()
	id, ok := c.ids[username]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	user, err := c.FetchUserProfile(ctx, username)
	if err != nil {
		return "", err
	}
	if user.IsPrivate && !user.FollowedByViewer {
		return "", &Error{Type: ErrorTypePrivate, Message: fmt.Sprintf("account %s is private", username), Code: http.StatusForbidden}
	}
	return user.ID, nil
}

// FetchFriendships fetches one page of kind for the account with userID
func (c *Client) FetchFriendships(ctx context.Context, userID string, kind models.Kind, maxID string) (*FriendshipsPage, error) {
	var page FriendshipsPage
	url := FriendshipsURL(c.baseURL, userID, kind, c.pageSize, maxID)
	if err := c.getJSON(ctx, relation(kind), url, &page); err != nil {
		return nil, err
	}
	if page.Status == "fail" {
		if errs.IsThrottleMessage(page.Message) {
			c.slowDown()
			return nil, &Error{Type: ErrorTypeRateLimit, Message: page.Message, Code: http.StatusOK}
		}
		return nil, &Error{Type: ErrorTypeUnknown, Message: page.Message, Code: http.StatusOK}
	}
	return &page, nil
}
