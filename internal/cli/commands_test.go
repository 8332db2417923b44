package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

type cliEnv struct {
	t   *testing.T
	dir string
	db  string
}

func newEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	return &cliEnv{t: t, dir: dir, db: filepath.Join(dir, "stoats.db")}
}

// run executes the root command against the environment's database and
// returns stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// json runs a command with --format json and decodes the data payload.
func (e *cliEnv) json(data any, args ...string) error {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	if out != "" {
		var resp struct {
			Status string          `json:"status"`
			Data   json.RawMessage `json:"data"`
		}
		require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
		if data != nil && len(resp.Data) > 0 {
			require.NoError(e.t, json.Unmarshal(resp.Data, data))
		}
	}
	return err
}

// writeRide writes a cycling activity of n samples at 10 second steps and
// returns its path and file hash.
func (e *cliEnv) writeRide(name string, start time.Time, n int) (string, string) {
	e.t.Helper()
	return e.writeActivity(name, "cycling", start, n)
}

// writeActivity omits the session record when sport is empty.
func (e *cliEnv) writeActivity(name, sport string, start time.Time, n int) (string, string) {
	e.t.Helper()
	var b strings.Builder
	if sport != "" {
		fmt.Fprintf(&b, `{"name":"session","fields":{"sport":%q}}`+"\n", sport)
	}
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * 10 * time.Second).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, `{"time":%q,"fields":{"heart_rate":%d}}`+"\n", at, 140+i%10)
	}
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(b.String()), 0644))
	return path, ir.RecordsHash([]byte(b.String()))
}

func TestImportCommand(t *testing.T) {
	env := newEnv(t)
	ride, _ := env.writeRide("ride.jsonl", time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), 12)

	out, err := env.run("import", ride)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ ride.jsonl: activity")
	assert.Contains(t, out, "(bike), 12 records, 13 values")

	out, err = env.run("import", ride)
	require.NoError(t, err)
	assert.Contains(t, out, "already imported")

	var summaries []ImportSummary
	require.NoError(t, env.json(&summaries, "import", "--force", ride))
	require.Len(t, summaries, 1)
	assert.Equal(t, "replaced", summaries[0].Status)
	assert.Equal(t, "bike", summaries[0].Group)
	assert.Equal(t, "cycling", summaries[0].Sport)
}

func TestImportCommand_FailureExitCode(t *testing.T) {
	env := newEnv(t)
	ride, _ := env.writeRide("ride.jsonl", time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), 3)

	out, err := env.run("import", ride, filepath.Join(env.dir, "missing.jsonl"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ ride.jsonl")
	assert.Contains(t, out, "✗ missing.jsonl")
	assert.Contains(t, err.Error(), "1 of 2 imports failed")
}

func TestImportCommand_Define(t *testing.T) {
	env := newEnv(t)
	cfg := filepath.Join(env.dir, "groups.cue")
	require.NoError(t, os.WriteFile(cfg, []byte(`groups: define: type: {commute: "commute"}`), 0644))
	ride, _ := env.writeActivity("ride.jsonl", "", time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), 3)

	var summaries []ImportSummary
	require.NoError(t, env.json(&summaries, "--config", cfg, "import", "-D", "type=commute", ride))
	require.Len(t, summaries, 1)
	assert.Equal(t, "commute", summaries[0].Group)

	_, err := env.run("import", "--force", ride)
	require.Error(t, err, "no sport, define or default group")
}

func TestCommands_BadConfig(t *testing.T) {
	env := newEnv(t)
	_, err := env.run("--config", filepath.Join(env.dir, "missing.cue"), "clean")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestCalculateAndCheck(t *testing.T) {
	env := newEnv(t)
	start := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Hour)
	ride, _ := env.writeRide("ride.jsonl", start, 30)
	metricsFile := filepath.Join(env.dir, "stoats.prom")

	_, err := env.run("import", ride)
	require.NoError(t, err)

	out, err := env.run("check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ provenance")
	assert.Contains(t, out, "✗ responses incomplete")
	assert.Contains(t, out, "stale: Fitness")

	out, err = env.run("--metrics", metricsFile, "calculate", "--owner", "Impulse", "--owner", "Response")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Impulse")
	assert.Contains(t, out, "✓ Response")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "stoats_rebuild_duration_seconds")

	var result CheckResult
	require.NoError(t, env.json(&result, "check"))
	assert.True(t, result.Complete)
	assert.Empty(t, result.Violation)
	assert.Empty(t, result.Stale)
}

func TestCalculateCommand_Errors(t *testing.T) {
	env := newEnv(t)

	_, err := env.run("calculate", "--owner", "Bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown calculator")

	_, err = env.run("calculate", "--name", "Nothing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("calculate", "--start", "2024-02-01", "--finish", "2024-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--finish must be after --start")

	_, err = env.run("calculate", "--start", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --start")
}

func TestCleanCommand(t *testing.T) {
	env := newEnv(t)

	out, err := env.run("clean")
	require.NoError(t, err)
	assert.Equal(t, "Removed 0 composites and 0 kit components.\n", out)

	var result CleanResult
	require.NoError(t, env.json(&result, "clean"))
	assert.Equal(t, CleanResult{}, result)
}

func TestTraceCommand(t *testing.T) {
	env := newEnv(t)
	ride, hash := env.writeRide("ride.jsonl", time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), 3)
	var summaries []ImportSummary
	require.NoError(t, env.json(&summaries, "import", ride))
	id := summaries[0].Activity

	var result TraceResult
	require.NoError(t, env.json(&result, "trace", "--hash", hash))
	assert.Equal(t, id, result.Root.Source.ID)
	assert.Equal(t, ir.SourceActivity, result.Root.Source.Kind)
	assert.Equal(t, 1, result.Stats.Nodes)
	assert.Equal(t, []ir.SourceID{id}, result.Stats.Leaves)

	out, err := env.run("trace", strconv.FormatInt(int64(id), 10))
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%d activity (bike %s)", id, hash))
	assert.Contains(t, out, "1 sources, depth 0, 1 leaves")
}

func TestTraceCommand_Errors(t *testing.T) {
	env := newEnv(t)

	_, err := env.run("trace")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("trace", "12", "--hash", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("trace", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("trace", "999")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, ErrorCode(err))
}

func TestSummarise(t *testing.T) {
	leaf := func(id ir.SourceID) store.ProvenanceNode {
		return store.ProvenanceNode{Source: ir.Source{ID: id, Kind: ir.SourceActivity}}
	}
	root := store.ProvenanceNode{
		Source: ir.Source{ID: 10, Kind: ir.SourceComposite},
		Inputs: []store.ProvenanceNode{
			{Source: ir.Source{ID: 9, Kind: ir.SourceComposite}, Inputs: []store.ProvenanceNode{leaf(1)}},
			leaf(2),
			leaf(1),
		},
	}

	stats := summarise(root)
	assert.Equal(t, 5, stats.Nodes)
	assert.Equal(t, 2, stats.Depth)
	assert.Equal(t, []ir.SourceID{1, 2}, stats.Leaves)
	assert.Equal(t, 2, stats.Kinds[ir.SourceComposite])
	assert.Equal(t, 3, stats.Kinds[ir.SourceActivity])

	var buf bytes.Buffer
	writeTree(&buf, root, 0, 2)
	assert.Equal(t, "10 composite\n  9 composite\n    ... 1 inputs\n  2 activity\n  1 activity\n", buf.String())
}

func TestKitCommands(t *testing.T) {
	env := newEnv(t)

	_, err := env.run("kit", "new", "shoe", "pegasus", "--at", "2024-01-01")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "force required")

	out, err := env.run("kit", "new", "shoe", "pegasus", "--force", "--at", "2024-01-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Created shoe pegasus")

	_, err = env.run("kit", "add", "pegasus", "insole", "foam", "--force", "--at", "2024-01-02")
	require.NoError(t, err)

	ride, _ := env.writeRide("ride.jsonl", time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), 3)
	var summaries []ImportSummary
	require.NoError(t, env.json(&summaries, "import", ride))

	out, err = env.run("kit", "use", strconv.FormatInt(int64(summaries[0].Activity), 10), "pegasus")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 kit sources)")

	out, err = env.run("kit", "show", "pegasus")
	require.NoError(t, err)
	assert.Contains(t, out, "shoe/pegasus  added 2024-01-01  uses 1")
	assert.Contains(t, out, "foam  added 2024-01-02")

	_, err = env.run("kit", "retire", "pegasus", "--at", "2024-06-01")
	require.NoError(t, err)

	var views []map[string]any
	require.NoError(t, env.json(&views, "kit", "show"))
	require.Len(t, views, 1)
	assert.Equal(t, "pegasus", views[0]["name"])
	assert.NotNil(t, views[0]["retired"])

	_, err = env.run("kit", "delete", "pegasus")
	require.NoError(t, err)

	out, err = env.run("kit", "show")
	require.NoError(t, err)
	assert.Equal(t, "No kit.\n", out)

	_, err = env.run("kit", "show", "pegasus")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestKitUse_UnknownActivity(t *testing.T) {
	env := newEnv(t)
	_, err := env.run("kit", "new", "bike", "cotic", "--force")
	require.NoError(t, err)

	_, err = env.run("kit", "use", "42", "cotic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activity 42 not found")
}
