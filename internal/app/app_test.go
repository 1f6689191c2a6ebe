package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/filter"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("TESTSCOUT_STRICTNESS", "strict")
	t.Setenv("TESTSCOUT_EXPORT_GATE", "0.9")
	t.Setenv("EMBEDDING_DIMENSIONS", "32")
	cfg, err := config.LoadLocal()
	require.NoError(t, err)
	return cfg
}

func TestBuild_WithoutAnalyst(t *testing.T) {
	cfg := localConfig(t)

	c, err := Build(cfg, Options{WithoutAnalyst: true})
	require.NoError(t, err)
	assert.Nil(t, c.Analyst)
	assert.Equal(t, 32, c.Embedder.Dimensions())
	assert.Len(t, c.Catalog.Areas, 5)
	assert.Same(t, c.Corpus, c.Orchestrator.Corpus())

	v, err := c.Embedder.Embed(context.Background(), "posting fails")
	require.NoError(t, err)
	assert.Len(t, v, 32)
}

func TestBuild_WithAnalyst(t *testing.T) {
	c, err := Build(localConfig(t), Options{})
	require.NoError(t, err)
	assert.NotNil(t, c.Analyst)
}

func TestBuild_BadCatalog(t *testing.T) {
	cfg := localConfig(t)
	cfg.Corpus.AreaCatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Build(cfg, Options{WithoutAnalyst: true})
	assert.Error(t, err)
}

func TestPipelineConfig(t *testing.T) {
	cfg := localConfig(t)
	pc, err := PipelineConfig(cfg.Analysis)
	require.NoError(t, err)
	assert.Equal(t, "strict", pc.Strictness)
	assert.Equal(t, 0.80, pc.Minimum)
	assert.Equal(t, 0.9, pc.ExportGate)
	assert.True(t, pc.AreaBoostEnabled)

	bad := 2.0
	cfg.Analysis.AnalysisGate = &bad
	_, err = PipelineConfig(cfg.Analysis)
	assert.ErrorIs(t, err, filter.ErrInvalidConfiguration)
}

func TestPolicy(t *testing.T) {
	p := Policy(config.AnalysisConfig{AreaBoost: true, BoostValue: 0.2, PenaltyValue: 0.1})
	assert.True(t, p.Enabled)
	assert.Equal(t, 0.2, p.Boost)
	assert.Equal(t, 0.1, p.Penalty)
}

func TestCorpusSource(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cases.csv")
	require.NoError(t, os.WriteFile(file, []byte("ID,Title\n1,x\n"), 0o644))

	assert.Equal(t, corpus.DirSource{Dir: dir}, CorpusSource(dir))
	assert.Equal(t, corpus.FileSource{Path: file}, CorpusSource(file))

	missing := filepath.Join(dir, "later.csv")
	assert.Equal(t, corpus.FileSource{Path: missing}, CorpusSource(missing))
}

func TestUpstreamClients_Optional(t *testing.T) {
	assert.Nil(t, BugTracker(config.TFSConfig{}))
	assert.NotNil(t, BugTracker(config.TFSConfig{BaseURL: "http://tfs.local", Project: "P"}))
	assert.Nil(t, CodeReview(config.GitHubConfig{Owner: "acme"}))
	assert.NotNil(t, CodeReview(config.GitHubConfig{Owner: "acme", Repo: "expert"}))
}
