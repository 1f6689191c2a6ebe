package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// RecordError describes one skipped row.
type RecordError struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Reason)
}

func (e RecordError) Unwrap() error { return ErrMalformedRecord }

// Diagnostics summarises a load.
type Diagnostics struct {
	Loaded    int           `json:"loaded"`
	Malformed int           `json:"malformed"`
	Errors    []RecordError `json:"errors,omitempty"`
}

// maxRecordedErrors bounds Diagnostics.Errors; Malformed keeps counting.
const maxRecordedErrors = 100

// column positions, -1 when absent.
type columns struct {
	id, title, state, area, created, description, steps int
}

// headerAliases maps normalised header names to columns.
var headerAliases = map[string]string{
	"id":          "id",
	"testid":      "id",
	"testcaseid":  "id",
	"title":       "title",
	"state":       "state",
	"area":        "area",
	"areapath":    "area",
	"createddate": "created",
	"created":     "created",
	"description": "description",
	"steps":       "steps",
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(h)
}

func mapColumns(header []string) (columns, error) {
	c := columns{-1, -1, -1, -1, -1, -1, -1}
	for i, h := range header {
		switch headerAliases[normalizeHeader(h)] {
		case "id":
			c.id = i
		case "title":
			c.title = i
		case "state":
			c.state = i
		case "area":
			c.area = i
		case "created":
			c.created = i
		case "description":
			c.description = i
		case "steps":
			c.steps = i
		}
	}
	if c.id < 0 || c.title < 0 {
		return c, fmt.Errorf("%w: header must include ID and Title columns, got %v", ErrCorpusUnavailable, header)
	}
	return c, nil
}

// parser accumulates records across one or more CSV inputs. Ids are unique
// across everything it has parsed.
type parser struct {
	name    string
	records []*models.TestCase
	seen    map[string]bool
	diag    Diagnostics
}

func newParser(name string) *parser {
	return &parser{name: name, seen: make(map[string]bool)}
}

func (p *parser) skip(line int, reason string) {
	p.diag.Malformed++
	re := RecordError{Source: p.name, Line: line, Reason: reason}
	if len(p.diag.Errors) < maxRecordedErrors {
		p.diag.Errors = append(p.diag.Errors, re)
	}
	slog.Warn("skipping malformed record", "source", re.Source, "line", re.Line, "reason", re.Reason)
}

func (p *parser) parse(ctx context.Context, r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read header of %s: %v", ErrCorpusUnavailable, p.name, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			p.skip(perr.StartLine, perr.Err.Error())
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrCorpusUnavailable, p.name, err)
		}
		line, _ := cr.FieldPos(0)

		get := func(i int) string {
			if i < 0 || i >= len(row) {
				return ""
			}
			return row[i]
		}

		id := strings.TrimSpace(get(cols.id))
		switch {
		case id == "":
			p.skip(line, "missing id")
			continue
		case p.seen[id]:
			p.skip(line, fmt.Sprintf("duplicate id %s", id))
			continue
		}
		p.seen[id] = true

		p.records = append(p.records, &models.TestCase{
			ID:          id,
			Title:       strings.TrimSpace(get(cols.title)),
			State:       strings.TrimSpace(get(cols.state)),
			Area:        strings.TrimSpace(get(cols.area)),
			CreatedDate: strings.TrimSpace(get(cols.created)),
			Description: get(cols.description),
			Steps:       get(cols.steps),
		})
		p.diag.Loaded++
	}
}
