package identity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	defaultGitHubAPI = "https://api.github.com"
	userAgent        = "DevNetFaucet"
	// Unauthenticated GitHub API access allows 60 requests an hour.
	defaultRatePerHour = 60
)

// GitHubResolver maps a numeric GitHub account ID to its login.
type GitHubResolver struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type GitHubOption func(*GitHubResolver)

func WithBaseURL(u string) GitHubOption {
	return func(r *GitHubResolver) {
		if u != "" {
			r.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithToken authenticates API calls, raising GitHub's rate limit.
func WithToken(token string) GitHubOption {
	return func(r *GitHubResolver) {
		r.token = token
	}
}

func WithHTTPClient(c *http.Client) GitHubOption {
	return func(r *GitHubResolver) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithRateLimit overrides the outbound request budget.
func WithRateLimit(l *rate.Limiter) GitHubOption {
	return func(r *GitHubResolver) {
		if l != nil {
			r.limiter = l
		}
	}
}

func WithGitHubLogger(logger *slog.Logger) GitHubOption {
	return func(r *GitHubResolver) {
		r.logger = logger
	}
}

func NewGitHubResolver(opts ...GitHubOption) *GitHubResolver {
	r := &GitHubResolver{
		baseURL:    defaultGitHubAPI,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Hour/defaultRatePerHour), 5),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Login returns the login of the account with the given ID.
func (r *GitHubResolver) Login(ctx context.Context, subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("github rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/user/"+url.PathEscape(subject), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
	if r.token != "" {
		req.Header.Set("Authorization", "token "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("github user lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read github response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github user lookup: status %d: %s", resp.StatusCode, gjson.GetBytes(body, "message").String())
	}

	login := gjson.GetBytes(body, "login").String()
	if login == "" {
		return "", fmt.Errorf("github user lookup: response has no login")
	}
	r.logger.DebugContext(ctx, "resolved github login", "subject", subject, "login", login)
	return login, nil
}
