package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/models"
	"github.com/markdave123-py/Indexa/internal/services"
)

type fakeJobs struct {
	index    string
	names    []string
	contents []string
	status   models.JobStatus
	err      error
}

func (f *fakeJobs) Submit(_ context.Context, index string, uploads []services.Upload) (*models.JobResult, error) {
	f.index = index
	res := &models.JobResult{JobID: "job-1", IndexName: "docs", Status: f.status}
	for _, u := range uploads {
		b, _ := io.ReadAll(u.Body)
		f.names = append(f.names, u.Name)
		f.contents = append(f.contents, string(b))
		res.Documents = append(res.Documents, models.DocumentOutcome{Name: u.Name, Status: models.DocumentIndexed, ChunkCount: 1, IndexedCount: 1})
	}
	return res, f.err
}

type fakeSearch struct {
	index, query string
	top          int
	hits         []models.SearchHit
}

func (f *fakeSearch) Search(_ context.Context, index, text string, top int) ([]models.SearchHit, error) {
	f.index, f.query, f.top = index, text, top
	return f.hits, nil
}

type fakeSchemas struct {
	name string
	dim  int
	err  error
}

func (f *fakeSchemas) EnsureIndex(_ context.Context, name string, dim int) error {
	f.name, f.dim = name, dim
	return f.err
}

func setupTestServices(t *testing.T, s *Services) *bytes.Buffer {
	t.Helper()
	svc = s
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	t.Cleanup(func() {
		svc = nil
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		ingestIndex, ingestJSON = "", false
		searchLimit, searchJSON = 5, false
		ensureDimension = 0
	})
	return buf
}

func run(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestIngestCmd(t *testing.T) {
	jobs := &fakeJobs{status: models.JobCompleted}
	out := setupTestServices(t, &Services{Jobs: jobs})

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	require.NoError(t, run("ingest", "--index", "handbook", path))
	assert.Equal(t, "handbook", jobs.index)
	assert.Equal(t, []string{"notes.txt"}, jobs.names)
	assert.Equal(t, []string{"hello"}, jobs.contents)
	assert.Contains(t, out.String(), "job-1")
	assert.Contains(t, out.String(), "notes.txt")
}

func TestIngestCmd_JSONAndFailure(t *testing.T) {
	jobs := &fakeJobs{status: models.JobFailed}
	out := setupTestServices(t, &Services{Jobs: jobs})

	path := filepath.Join(t.TempDir(), "a.md")
	require.NoError(t, os.WriteFile(path, []byte("# a"), 0o600))

	err := run("ingest", "--json", path)
	assert.Error(t, err)

	var res models.JobResult
	require.NoError(t, json.Unmarshal(out.Bytes()[:bytes.LastIndexByte(out.Bytes(), '}')+1], &res))
	assert.Equal(t, models.JobFailed, res.Status)
}

func TestIngestCmd_RequiresFiles(t *testing.T) {
	setupTestServices(t, &Services{Jobs: &fakeJobs{}})
	err := run("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestIngestCmd_MissingFile(t *testing.T) {
	setupTestServices(t, &Services{Jobs: &fakeJobs{}})
	err := run("ingest", filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.pdf")
}

func TestEnsureIndexCmd(t *testing.T) {
	schemas := &fakeSchemas{}
	out := setupTestServices(t, &Services{Schemas: schemas, VectorDimension: 1536})

	require.NoError(t, run("ensure-index", "docs"))
	assert.Equal(t, "docs", schemas.name)
	assert.Equal(t, 1536, schemas.dim)
	assert.Contains(t, out.String(), "Index docs is ready")

	require.NoError(t, run("ensure-index", "docs", "-d", "768"))
	assert.Equal(t, 768, schemas.dim)

	schemas.err = core.ErrSchemaMismatch
	assert.ErrorIs(t, run("ensure-index", "docs"), core.ErrSchemaMismatch)
}

func TestSearchCmd(t *testing.T) {
	search := &fakeSearch{hits: []models.SearchHit{{DocumentID: "a.txt", Title: "a", Content: "renewal   terms\napply", Score: 0.5}}}
	out := setupTestServices(t, &Services{Search: search})

	require.NoError(t, run("search", "docs", "renewal", "-n", "3"))
	assert.Equal(t, "docs", search.index)
	assert.Equal(t, "renewal", search.query)
	assert.Equal(t, 3, search.top)
	assert.Contains(t, out.String(), "[1] a #0 (0.500)")
	assert.Contains(t, out.String(), "renewal terms apply")
}

func TestSearchCmd_NoResults(t *testing.T) {
	out := setupTestServices(t, &Services{Search: &fakeSearch{}})
	require.NoError(t, run("search", "docs", "nothing"))
	assert.Contains(t, out.String(), "No results found.")
}

func TestCommandsFailWithoutServices(t *testing.T) {
	setupTestServices(t, nil)
	err := run("search", "docs", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "services not configured")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b", snippet(" a \n b ", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}
