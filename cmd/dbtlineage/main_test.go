package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/dbtlineage/internal/artifact"
	"github.com/tordrt/dbtlineage/internal/config"
	"github.com/tordrt/dbtlineage/internal/enrich"
	"github.com/tordrt/dbtlineage/internal/export"
	"github.com/tordrt/dbtlineage/internal/testutil"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&outputFile, "output", config.DefaultOutput, "")
	fs.StringVar(&describerName, "describer", config.BackendHuggingFace, "")
	fs.StringVar(&contextStrategy, "context-strategy", "basic", "")
	fs.DurationVar(&timeout, "timeout", config.DefaultTimeout, "")
	fs.IntVar(&cacheSize, "cache-size", config.DefaultCacheSize, "")
	fs.StringVar(&dbURL, "db-url", "", "")
	fs.BoolVar(&upload, "upload", false, "")
	fs.StringVar(&runID, "run-id", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestApplyFlags(t *testing.T) {
	getenv := func(k string) string {
		return map[string]string{
			"HF_API_KEY":             "hf",
			"GEMINI_API_KEY":         "gem",
			"DBTLINEAGE_S3_ENDPOINT": "minio:9000",
		}[k]
	}

	t.Run("unset flags keep file values", func(t *testing.T) {
		cfg := config.Default()
		cfg.Output = "from_file.json"
		cfg.Describer.Timeout = 5 * time.Second
		applyFlags(testFlags(t), cfg, nil, getenv)

		assert.Equal(t, "from_file.json", cfg.Output)
		assert.Equal(t, 5*time.Second, cfg.Describer.Timeout)
		assert.Nil(t, cfg.Upload)
	})

	t.Run("flags override", func(t *testing.T) {
		cfg := config.Default()
		cfg.Describer.APIKey = "hf"
		fs := testFlags(t,
			"--output", "out.json",
			"--describer", "Gemini",
			"--timeout", "2s",
			"--cache-size", "0",
			"--db-url", "sqlite://x.db",
			"--upload",
			"--run-id", "nightly",
		)
		applyFlags(fs, cfg, []string{"a", "b"}, getenv)

		assert.Equal(t, []string{"a", "b"}, cfg.Projects)
		assert.Equal(t, "out.json", cfg.Output)
		assert.Equal(t, config.BackendGemini, cfg.Describer.Backend)
		assert.Equal(t, "gem", cfg.Describer.APIKey)
		assert.True(t, cfg.Describer.Explicit)
		assert.Equal(t, 2*time.Second, cfg.Describer.Timeout)
		assert.Zero(t, cfg.Describer.CacheSize)
		assert.Equal(t, "sqlite://x.db", cfg.DatabaseURL)
		require.NotNil(t, cfg.Upload)
		assert.Equal(t, "minio:9000", cfg.Upload.Endpoint)
		assert.Equal(t, "nightly", cfg.Upload.RunID)
	})
	upload = false
}

func TestContextStrategyFor(t *testing.T) {
	assert.Equal(t, enrich.StrategyCode, contextStrategyFor("Code"))
	assert.Equal(t, enrich.StrategyBasic, contextStrategyFor(""))
	assert.Equal(t, enrich.Strategy("vector"), contextStrategyFor("vector"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "json", false)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger, err = newLogger(&buf, "text", true)
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")

	_, err = newLogger(&buf, "xml", false)
	assert.Error(t, err)
}

// resetFlags restores every command flag to its default so each Execute
// starts from a clean command line.
func resetFlags(t *testing.T) {
	t.Helper()
	for _, fs := range []*pflag.FlagSet{rootCmd.PersistentFlags(), rootCmd.Flags(), serveCmd.Flags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				require.NoError(t, sv.Replace(nil))
			} else {
				require.NoError(t, f.Value.Set(f.DefValue))
			}
			f.Changed = false
		})
	}
}

func writeTwoProjects(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteProject(t, root, "proj_a", testutil.Node{
		Name:      "orders",
		Columns:   []testutil.Column{{Name: "id", Type: "int"}},
		DependsOn: []string{"model.proj_b.customers"},
	})
	testutil.WriteProject(t, root, "proj_b", testutil.Node{
		Name:    "customers",
		Columns: []testutil.Column{{Name: "id", Type: "int"}},
	})
	return root
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HF_API_KEY", "HUGGINGFACE_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"DBTLINEAGE_DB_URL", "DBTLINEAGE_S3_BUCKET",
	} {
		t.Setenv(key, "")
	}
}

func TestRootCommand_NoAPIKeyStillExports(t *testing.T) {
	clearEnv(t)
	resetFlags(t)
	root := writeTwoProjects(t)
	output := filepath.Join(t.TempDir(), "o.json")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--projects-dir", root, "--output", output})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	assert.Contains(t, stdout.String(), "Exported 2 models and 1 dependencies")
	assert.Contains(t, stderr.String(), "description generation disabled")

	doc, err := export.ReadFile(output)
	require.NoError(t, err)
	assert.Empty(t, doc.AIDescriptions)
}

func TestRootCommand_ExplicitBackendNeedsKey(t *testing.T) {
	clearEnv(t)
	resetFlags(t)
	root := writeTwoProjects(t)
	output := filepath.Join(t.TempDir(), "o.json")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--projects-dir", root, "--output", output, "--describer", "huggingface"})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPrintLinks(t *testing.T) {
	var buf bytes.Buffer
	printLinks(&buf, "lineage", []artifact.Link{{Key: "run-1/o.json", URL: "https://s3.test/run-1/o.json?sig"}})
	assert.Equal(t, "Uploaded s3://lineage/run-1/o.json\n  https://s3.test/run-1/o.json?sig\n", buf.String())
}

func TestRootCommand(t *testing.T) {
	clearEnv(t)
	resetFlags(t)

	root := t.TempDir()
	projA := testutil.WriteProject(t, root, "proj_a", testutil.Node{
		Name:      "orders",
		Columns:   []testutil.Column{{Name: "id", Type: "int"}},
		DependsOn: []string{"model.proj_b.customers"},
	})
	testutil.WriteProject(t, root, "proj_b", testutil.Node{
		Name:    "customers",
		Columns: []testutil.Column{{Name: "id", Type: "int"}},
	})

	out := t.TempDir()
	output := filepath.Join(out, "lineage.json")
	htmlPath := filepath.Join(out, "lineage.html")
	docs := filepath.Join(out, "docs")
	dbPath := filepath.Join(out, "lineage.db")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{
		"--projects-dir", root,
		projA,
		"--describer", "none",
		"--output", output,
		"--html", htmlPath,
		"--docs-dir", docs,
		"--db-url", "sqlite://" + dbPath,
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, stdout.String(), "Exported 2 models and 1 dependencies")

	doc, err := export.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Meta.NodeCount)
	assert.Equal(t, "proj_a.orders", doc.Nodes[0].ID)

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "proj_b.customers"))

	_, err = os.Stat(filepath.Join(docs, "_overview.md"))
	assert.NoError(t, err)

	conn, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	var edges int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM lineage_edges").Scan(&edges))
	assert.Equal(t, 1, edges)

	t.Run("serve rejects unknown transport", func(t *testing.T) {
		rootCmd.SetArgs([]string{"serve", "--input", output, "--transport", "carrier-pigeon"})
		assert.Error(t, rootCmd.ExecuteContext(context.Background()))
	})
}
