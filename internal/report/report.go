// Package report writes analysis results as CSV and manages the directory
// exported reports are kept in.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Header is the exported report's column layout.
var Header = []string{
	"test_id", "title", "state", "area", "created_date", "similarity_score",
	"reasoning", "duplicate_classification", "related_test_ids", "suggested_update",
}

// Rows returns one row per similar test at or above the export gate.
func Rows(result *models.AnalysisResult) [][]string {
	related := make(map[string]models.RelatedTest, len(result.Judgment.RelatedTests))
	for _, rt := range result.Judgment.RelatedTests {
		related[rt.TestID] = rt
	}
	groupOf := make(map[string]models.DuplicateGroup)
	for _, g := range result.Judgment.DuplicateGroups {
		for _, id := range g.TestIDs {
			if _, ok := groupOf[id]; !ok {
				groupOf[id] = g
			}
		}
	}

	tests := result.ExportTests()
	rows := make([][]string, 0, len(tests))
	for _, s := range tests {
		tc := s.TestCase
		classification := models.DuplicateDistinct
		var others []string
		if g, ok := groupOf[tc.ID]; ok {
			classification = g.Classification
			for _, id := range g.TestIDs {
				if id != tc.ID {
					others = append(others, id)
				}
			}
		}
		rt := related[tc.ID]
		rows = append(rows, []string{
			tc.ID,
			tc.Title,
			tc.State,
			tc.Area,
			tc.CreatedDate,
			strconv.FormatFloat(s.Adjusted, 'f', 3, 64),
			rt.Rationale,
			classification,
			strings.Join(others, ";"),
			rt.SuggestedUpdate,
		})
	}
	return rows
}

// Write writes result as CSV.
func Write(w io.Writer, result *models.AnalysisResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(Rows(result)); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Report directory errors.
var (
	ErrInvalidName = errors.New("invalid report name")
	ErrNotFound    = errors.New("report not found")
)

const (
	filePrefix = "test_analysis_"
	fileExt    = ".csv"
)

// FileName is the name a result is saved under.
func FileName(id uuid.UUID) string {
	return filePrefix + id.String() + fileExt
}

// Entry describes one saved report file.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

// Dir is a directory of exported CSV reports.
type Dir struct {
	root string
}

// NewDir creates root if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// Save writes result to FileName(result.ID) and returns the file name. The
// file is written to a temporary name first and renamed into place.
func (d *Dir) Save(result *models.AnalysisResult) (string, error) {
	name := FileName(result.ID)
	tmp, err := os.CreateTemp(d.root, ".tmp-"+filePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Write(tmp, result); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.root, name)); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return name, nil
}

// Open opens a saved report. Only plain .csv names inside the directory are
// accepted.
func (d *Dir) Open(name string) (*os.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	return f, nil
}

// List returns saved reports, newest first.
func (d *Dir) List() ([]Entry, error) {
	dirents, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	entries := []Entry{}
	for _, de := range dirents {
		if de.IsDir() || validName(de.Name()) != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime().UTC()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), fileExt) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
