package corpus

import (
	"sort"
	"strings"
	"time"

	"github.com/kiranshivaraju/testscout/internal/similarity"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Snapshot is an immutable loaded corpus with its embeddings.
type Snapshot struct {
	key        string
	records    []*models.TestCase
	vectors    [][]float32
	byKey      map[embedKey]int
	byID       map[string]int
	diag       Diagnostics
	unembedded int
	loadedAt   time.Time
}

func newSnapshot(key string, records []*models.TestCase, vectors [][]float32, keys []embedKey, diag Diagnostics) *Snapshot {
	s := &Snapshot{
		key:      key,
		records:  records,
		vectors:  vectors,
		byKey:    make(map[embedKey]int, len(records)),
		byID:     make(map[string]int, len(records)),
		diag:     diag,
		loadedAt: time.Now().UTC(),
	}
	for i, r := range records {
		s.byKey[keys[i]] = i
		s.byID[r.ID] = i
		if vectors[i] == nil {
			s.unembedded++
		}
	}
	return s
}

// lookup returns the cached vector for k. Safe on a nil snapshot.
func (s *Snapshot) lookup(k embedKey) ([]float32, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.byKey[k]
	if !ok || s.vectors[i] == nil {
		return nil, false
	}
	return s.vectors[i], true
}

// Key is the key of the source the snapshot was loaded from.
func (s *Snapshot) Key() string { return s.key }

// Len is the number of loaded records.
func (s *Snapshot) Len() int { return len(s.records) }

// Records returns the records in load order. The slice must not be modified.
func (s *Snapshot) Records() []*models.TestCase { return s.records }

// Diagnostics returns the load diagnostics.
func (s *Snapshot) Diagnostics() Diagnostics { return s.diag }

// Unembedded is the number of records without an embedding.
func (s *Snapshot) Unembedded() int { return s.unembedded }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Get returns the record with the given id.
func (s *Snapshot) Get(id string) (*models.TestCase, bool) {
	i, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	return s.records[i], true
}

// Vector returns the embedding of a record, if it has one.
func (s *Snapshot) Vector(id string) ([]float32, bool) {
	i, ok := s.byID[id]
	if !ok || s.vectors[i] == nil {
		return nil, false
	}
	return s.vectors[i], true
}

// Candidates returns every embedded record in load order.
func (s *Snapshot) Candidates() []similarity.Candidate {
	out := make([]similarity.Candidate, 0, len(s.records)-s.unembedded)
	for i, r := range s.records {
		if s.vectors[i] == nil {
			continue
		}
		out = append(out, similarity.Candidate{Record: r, Vector: s.vectors[i], Order: i})
	}
	return out
}

// ByArea returns records whose area path starts with areaPath
// (case-insensitive), optionally restricted to one state. limit <= 0 means
// no limit.
func (s *Snapshot) ByArea(areaPath, state string, limit int) []*models.TestCase {
	prefix := strings.ToLower(strings.TrimSpace(areaPath))
	out := []*models.TestCase{}
	for _, r := range s.records {
		if !strings.HasPrefix(strings.ToLower(r.Area), prefix) {
			continue
		}
		if state != "" && !strings.EqualFold(r.State, state) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// KeywordHit is one keyword search result.
type KeywordHit struct {
	TestCase        *models.TestCase `json:"test_case"`
	Relevance       float64          `json:"relevance_score"`
	MatchedKeywords int              `json:"matched_keywords"`
}

// SearchKeywords finds records whose title, description or steps contain
// any keyword. Relevance is the fraction of keywords found. Results are
// sorted by relevance, then load order.
func (s *Snapshot) SearchKeywords(keywords []string, limit int) []KeywordHit {
	var kws []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	hits := []KeywordHit{}
	if len(kws) == 0 {
		return hits
	}

	for _, r := range s.records {
		text := strings.ToLower(r.EmbeddingText())
		n := 0
		for _, k := range kws {
			if strings.Contains(text, k) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		hits = append(hits, KeywordHit{
			TestCase:        r,
			Relevance:       float64(n) / float64(len(kws)),
			MatchedKeywords: n,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Relevance > hits[j].Relevance })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// AreaStats counts the records of one area by state.
type AreaStats struct {
	Total  int            `json:"total"`
	States map[string]int `json:"states"`
}

// Stats describes a snapshot.
type Stats struct {
	Source         string               `json:"source"`
	TotalTestCases int                  `json:"total_test_cases"`
	Malformed      int                  `json:"malformed_records"`
	Unembedded     int                  `json:"unembedded_records"`
	LoadedAt       time.Time            `json:"loaded_at"`
	Areas          map[string]AreaStats `json:"areas"`
}

// Stats groups records by area. areaName maps an area path to the name it is
// reported under; nil reports raw paths.
func (s *Snapshot) Stats(areaName func(path string) string) Stats {
	st := Stats{
		Source:         s.key,
		TotalTestCases: len(s.records),
		Malformed:      s.diag.Malformed,
		Unembedded:     s.unembedded,
		LoadedAt:       s.loadedAt,
		Areas:          map[string]AreaStats{},
	}
	for _, r := range s.records {
		name := r.Area
		if areaName != nil {
			name = areaName(r.Area)
		}
		if name == "" {
			name = "(none)"
		}
		a, ok := st.Areas[name]
		if !ok {
			a = AreaStats{States: map[string]int{}}
		}
		a.Total++
		a.States[r.State]++
		st.Areas[name] = a
	}
	return st
}
