// Package github reads pull requests from the code-review service.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.github.com"

// Sentinel errors for code-review service failures.
var (
	ErrNotFound     = errors.New("pull request not found")
	ErrUnauthorized = errors.New("code review service rejected credentials")
	ErrUnreachable  = errors.New("code review service unreachable")
	ErrAPI          = errors.New("code review service error")
)

const (
	filesPerPage = 100
	// maxFilePages bounds file listing; the API stops at 3000 files.
	maxFilePages = 30
)

// Client is the interface for fetching pull requests.
type Client interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*models.PullRequest, error)
}

// HTTPClient implements Client using the REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client. An empty baseURL means DefaultBaseURL.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetPullRequest fetches a pull request and its changed files. The summary
// is taken from a "Summary" section of the PR body when there is one.
func (c *HTTPClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*models.PullRequest, error) {
	base := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), number)

	var pr pullResponse
	if err := c.get(ctx, base, &pr); err != nil {
		return nil, err
	}

	files := []models.ChangedFile{}
	for page := 1; page <= maxFilePages; page++ {
		var batch []fileResponse
		u := fmt.Sprintf("%s/files?per_page=%d&page=%d", base, filesPerPage, page)
		if err := c.get(ctx, u, &batch); err != nil {
			return nil, err
		}
		for _, f := range batch {
			files = append(files, models.ChangedFile{
				Filename:  f.Filename,
				Status:    f.Status,
				Additions: f.Additions,
				Deletions: f.Deletions,
			})
		}
		if len(batch) < filesPerPage {
			break
		}
	}

	return &models.PullRequest{
		Number:  pr.Number,
		Title:   pr.Title,
		State:   pr.State,
		URL:     pr.HTMLURL,
		Files:   files,
		Summary: ExtractSummary(pr.Body),
	}, nil
}

func (c *HTTPClient) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: timeout: %v", ErrUnreachable, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrAPI, err)
	}
	return nil
}

var (
	reHeading        = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	reSummaryHeading = regexp.MustCompile(`(?i)\bsummary\b`)
)

// ExtractSummary returns the body of the first markdown section whose
// heading mentions "summary", or "" when there is none.
func ExtractSummary(body string) string {
	var (
		in    bool
		lines []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if m := reHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if in {
				break
			}
			in = reSummaryHeading.MatchString(m[1])
			continue
		}
		if in {
			lines = append(lines, line)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type pullResponse struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

type fileResponse struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
