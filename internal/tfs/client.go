// Package tfs reads bugs and test cases from the bug-tracking service.
package tfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/testscout/internal/textproc"
	"github.com/kiranshivaraju/testscout/pkg/models"
	"github.com/kiranshivaraju/testscout/pkg/wiql"
)

// Sentinel errors for tracking-service failures.
var (
	ErrUnreachable = errors.New("tracking service unreachable")
	ErrQuery       = errors.New("tracking service query error")
	ErrTimeout     = errors.New("tracking service timeout")
	ErrNotFound    = errors.New("work item not found")
)

const (
	apiVersion = "4.1"
	// batchSize is the most ids the work items endpoint accepts per call.
	batchSize = 200
)

// Work item field names.
const (
	fieldTitle       = "System.Title"
	fieldState       = "System.State"
	fieldAreaPath    = "System.AreaPath"
	fieldCreatedDate = "System.CreatedDate"
	fieldDescription = "System.Description"
	fieldSteps       = "Microsoft.VSTS.TCM.Steps"
	fieldReproSteps  = "Microsoft.VSTS.TCM.ReproSteps"
)

var testCaseFields = []string{
	"System.Id", fieldTitle, fieldState, fieldAreaPath, fieldCreatedDate, fieldDescription, fieldSteps,
}

// Client is the interface for the bug-tracking service.
type Client interface {
	GetBug(ctx context.Context, id int) (*models.BugReport, error)
	QueryTestCases(ctx context.Context, req QueryRequest) ([]*models.TestCase, error)
}

// QueryRequest selects test cases to export.
type QueryRequest struct {
	AreaPath string
	States   []string
	// Limit caps the number of test cases; zero means all.
	Limit int
}

// HTTPClient implements Client using the work item tracking REST API.
type HTTPClient struct {
	baseURL    string
	collection string
	project    string
	pat        string
	client     *http.Client
	queries    wiql.QueryBuilder
}

// NewHTTPClient creates a client for {baseURL}/{collection}/{project}.
func NewHTTPClient(baseURL, collection, project, pat string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		project:    project,
		pat:        pat,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) apiURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api-version", apiVersion)
	return fmt.Sprintf("%s/%s/%s/_apis/wit/%s?%s",
		c.baseURL, url.PathEscape(c.collection), url.PathEscape(c.project), path, params.Encode())
}

// GetBug fetches one bug. Description and repro steps are returned as plain text.
func (c *HTTPClient) GetBug(ctx context.Context, id int) (*models.BugReport, error) {
	var item workItem
	if err := c.do(ctx, http.MethodGet, c.apiURL("workitems/"+strconv.Itoa(id), nil), nil, &item); err != nil {
		return nil, err
	}
	return &models.BugReport{
		ID:          id,
		Title:       item.field(fieldTitle),
		State:       item.field(fieldState),
		AreaPath:    item.field(fieldAreaPath),
		Description: textproc.StripHTML(item.field(fieldDescription)),
		ReproSteps:  textproc.StripHTML(item.field(fieldReproSteps)),
	}, nil
}

// QueryTestCases runs a WIQL query for test cases and fetches their fields
// in batches. Steps are converted to the corpus steps format.
func (c *HTTPClient) QueryTestCases(ctx context.Context, req QueryRequest) ([]*models.TestCase, error) {
	query := c.queries.BuildTestCaseQuery(wiql.TestCaseParams{
		Project:  c.project,
		AreaPath: req.AreaPath,
		States:   req.States,
	})

	var result wiqlResponse
	if err := c.do(ctx, http.MethodPost, c.apiURL("wiql", nil), wiqlRequest{Query: query}, &result); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.WorkItems))
	for _, ref := range result.WorkItems {
		if req.Limit > 0 && len(ids) == req.Limit {
			break
		}
		ids = append(ids, strconv.Itoa(ref.ID))
	}

	testCases := make([]*models.TestCase, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		params := url.Values{
			"ids":    {strings.Join(ids[start:end], ",")},
			"fields": {strings.Join(testCaseFields, ",")},
		}
		var batch workItemList
		if err := c.do(ctx, http.MethodGet, c.apiURL("workitems", params), nil, &batch); err != nil {
			return nil, err
		}
		for _, item := range batch.Value {
			testCases = append(testCases, item.testCase())
		}
	}

	slog.Info("test cases fetched", "area", req.AreaPath, "matched", len(result.WorkItems), "fetched", len(testCases))
	return testCases, nil
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrQuery, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrQuery, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.pat != "" {
		req.SetBasicAuth("", c.pat)
	}
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- API types ---

type wiqlRequest struct {
	Query string `json:"query"`
}

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

type workItemList struct {
	Count int        `json:"count"`
	Value []workItem `json:"value"`
}

type workItem struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (w workItem) field(name string) string {
	switch v := w.Fields[name].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (w workItem) testCase() *models.TestCase {
	steps, err := ParseSteps(w.field(fieldSteps))
	if err != nil {
		slog.Warn("unreadable test steps", "id", w.ID, "error", err)
	}
	return &models.TestCase{
		ID:          strconv.Itoa(w.ID),
		Title:       w.field(fieldTitle),
		State:       w.field(fieldState),
		Area:        w.field(fieldAreaPath),
		CreatedDate: w.field(fieldCreatedDate),
		Description: textproc.StripHTML(w.field(fieldDescription)),
		Steps:       steps,
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
