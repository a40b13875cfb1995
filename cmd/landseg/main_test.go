package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/landseg/fact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobYAML = `run_id: test-run
hierarchy: lookup.csv
seed: seed.csv
controls:
  - name: population
    file: population.csv
factors:
  - name: tenure
    file: tenure.csv
    on: [sex]
output: out.csv
rake:
  tolerance: 1e-9
chunking:
  workers: 2
storage:
  backend: local
  dir: checkpoints
  format: binary
  compression: lz4
findings:
  prefix: audit/
log:
  level: error
`

var fixtures = map[string]string{
	"lookup.csv": "zone,district\nz1,d1\nz2,d1\nz3,d2\nz4,d2\n",
	"seed.csv": "geography,sex,value\n" +
		"z1,f,10\nz1,m,10\nz2,f,10\nz2,m,10\nz3,f,10\nz3,m,10\nz4,f,10\nz4,m,10\n",
	"population.csv": "geography,value\nz1,30\nz2,20\nz3,40\nz4,10\n",
	"tenure.csv": "geography,sex,tenure,value\n" +
		",f,own,0.5\n,f,rent,0.5\n,m,own,0.4\n,m,rent,0.6\n",
}

func writeJob(t *testing.T, job string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range fixtures {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(job), 0o600))
	return path
}

func TestLoadJob(t *testing.T) {
	path := writeJob(t, jobYAML)
	dir := filepath.Dir(path)

	t.Setenv("LANDSEG_WORKERS", "8")
	t.Setenv("LANDSEG_TOLERANCE", "0.01")
	t.Setenv("LANDSEG_LOG_FORMAT", "json")

	job, err := LoadJob(path)
	require.NoError(t, err)

	assert.Equal(t, "test-run", job.RunID)
	assert.Equal(t, filepath.Join(dir, "seed.csv"), job.Seed)
	assert.Equal(t, filepath.Join(dir, "checkpoints"), job.Storage.Dir)
	assert.Equal(t, 8, job.Chunking.Workers)
	assert.Equal(t, 0.01, job.Rake.Tolerance)
	assert.Equal(t, "json", job.Log.Format)
	assert.Equal(t, "error", job.Log.Level)
	assert.Nil(t, job.Rake.Folding)
	require.Len(t, job.Factors, 1)
	assert.Equal(t, []string{"sex"}, job.Factors[0].On)
}

func TestLoadJob_Invalid(t *testing.T) {
	path := writeJob(t, "seed: seed.csv\nstorage:\n  backend: s3\n")
	_, err := LoadJob(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_id is required")
	assert.Contains(t, err.Error(), "hierarchy is required")
	assert.Contains(t, err.Error(), "storage.bucket is required")

	path = writeJob(t, "run_id: x\nhierarchy: h.csv\nseed: s.csv\nstorage:\n  backend: ftp\n")
	_, err = LoadJob(path)
	assert.ErrorContains(t, err, `unknown storage backend "ftp"`)
}

func TestRunCommand(t *testing.T) {
	path := writeJob(t, jobYAML)
	dir := filepath.Dir(path)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", path})
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.Execute())

	f, err := os.Open(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	defer f.Close()
	out, err := fact.ReadCSV(f)
	require.NoError(t, err)

	assert.Equal(t, []string{"sex", "tenure"}, out.Dims())
	assert.Equal(t, 16, out.Len())
	assert.InDelta(t, 100, out.Sum(), 1e-6)
	v, ok := out.Lookup("z1", "m", "own")
	require.True(t, ok)
	assert.InDelta(t, 6, v, 1e-6)

	var buf bytes.Buffer
	cmd = newRootCmd()
	cmd.SetArgs([]string{"checkpoints", path})
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())
	listing := buf.String()
	assert.Regexp(t, `test-run/rake\s+table=false chunks=2`, listing)
	assert.Contains(t, listing, "run test-run: completed=seed,chunk,rake,resolve")

	// A second run resumes from the committed state.
	cmd = newRootCmd()
	cmd.SetArgs([]string{"run", path})
	require.NoError(t, cmd.Execute())
}

func TestChunksCommand(t *testing.T) {
	path := writeJob(t, jobYAML)

	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"chunks", filepath.Join(filepath.Dir(path), "lookup.csv")})
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"zone,district,chunk,synthetic",
		"z1,d1,1,false",
		"z2,d1,1,false",
		"z3,d2,2,false",
		"z4,d2,2,false",
	}, lines)
}
