// Package corpus loads test-case corpora and keeps their embeddings cached.
package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Sentinel errors for corpus loading.
var (
	// ErrCorpusUnavailable means no corpus could be read at all.
	ErrCorpusUnavailable = errors.New("corpus unavailable")
	// ErrMalformedRecord marks a row that was skipped.
	ErrMalformedRecord = errors.New("malformed record")
)

// Source yields corpus records. Key identifies the source for cache lookups:
// two sources with the same key load the same corpus.
type Source interface {
	Key() string
	Load(ctx context.Context) ([]*models.TestCase, Diagnostics, error)
}

// FileSource is a single CSV file.
type FileSource struct {
	Path string
}

func (s FileSource) Key() string { return "file:" + filepath.Clean(s.Path) }

func (s FileSource) Load(ctx context.Context) ([]*models.TestCase, Diagnostics, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	p := newParser(filepath.Base(s.Path))
	if err := p.parse(ctx, f); err != nil {
		return nil, Diagnostics{}, err
	}
	return p.records, p.diag, nil
}

// DirSource is every *.csv file of a directory, read in name order.
type DirSource struct {
	Dir string
}

func (s DirSource) Key() string { return "dir:" + filepath.Clean(s.Dir) }

func (s DirSource) Load(ctx context.Context) ([]*models.TestCase, Diagnostics, error) {
	files, err := filepath.Glob(filepath.Join(s.Dir, "*.csv"))
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	if len(files) == 0 {
		return nil, Diagnostics{}, fmt.Errorf("%w: no CSV files in %s", ErrCorpusUnavailable, s.Dir)
	}
	sort.Strings(files)

	p := newParser("")
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, Diagnostics{}, fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
		}
		p.name = filepath.Base(path)
		err = p.parse(ctx, f)
		_ = f.Close()
		if err != nil {
			return nil, Diagnostics{}, err
		}
	}
	return p.records, p.diag, nil
}

// BytesSource is an in-memory CSV, such as an uploaded file.
type BytesSource struct {
	Name string
	Data []byte
}

// Key is derived from the content, so re-uploading the same file hits the cache.
func (s BytesSource) Key() string {
	return "bytes:" + strconv.FormatUint(xxhash.Sum64(s.Data), 16)
}

func (s BytesSource) Load(ctx context.Context) ([]*models.TestCase, Diagnostics, error) {
	name := s.Name
	if name == "" {
		name = "upload"
	}
	p := newParser(name)
	if err := p.parse(ctx, bytes.NewReader(s.Data)); err != nil {
		return nil, Diagnostics{}, err
	}
	return p.records, p.diag, nil
}

// OpenPath returns a DirSource for directories and a FileSource otherwise.
func OpenPath(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	if fi.IsDir() {
		return DirSource{Dir: path}, nil
	}
	return FileSource{Path: path}, nil
}
