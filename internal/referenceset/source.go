// Package referenceset loads the remote TOML project registry and extracts
// the GitHub owner handles it lists.
package referenceset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	pstrings "faucet/pkg/platform/strings"
)

const (
	defaultTimeout = 30 * time.Second
	// maxDocumentBytes caps the document read; registry files run to a few MB.
	maxDocumentBytes = 32 << 20
)

var ownerPattern = regexp.MustCompile(`github\.com/([a-z0-9-]+)`)

// Document is the subset of the registry format the faucet reads.
type Document struct {
	Repo []Repository `toml:"repo"`
}

type Repository struct {
	URL  string   `toml:"url"`
	Tags []string `toml:"tags"`
}

// Source fetches the registry over HTTP.
type Source struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Source)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.httpClient = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

func New(url string, opts ...Option) (*Source, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("reference set url is required")
	}
	s := &Source{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handles fetches and parses the registry and returns the lowercased,
// de-duplicated owner handles in document order.
func (s *Source) Handles(ctx context.Context) ([]string, error) {
	body, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	handles := doc.Owners()
	s.logger.InfoContext(ctx, "reference set loaded",
		"repositories", len(doc.Repo),
		"owners", len(handles),
	)
	return handles, nil
}

func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch reference set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch reference set: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read reference set: %w", err)
	}
	return body, nil
}

// Parse decodes a registry document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse reference set: %w", err)
	}
	return &doc, nil
}

// Owners returns the owner segment of every GitHub repository URL.
func (d *Document) Owners() []string {
	owners := make([]string, 0, len(d.Repo))
	for _, r := range d.Repo {
		if owner, ok := OwnerOf(r.URL); ok {
			owners = append(owners, owner)
		}
	}
	return pstrings.DedupeAndTrimLower(owners)
}

// OwnerOf extracts the owner handle from a repository URL such as
// https://github.com/neo-project/neo-go.
func OwnerOf(url string) (string, bool) {
	m := ownerPattern.FindStringSubmatch(strings.ToLower(url))
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}
