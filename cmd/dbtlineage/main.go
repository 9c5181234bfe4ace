package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tordrt/dbtlineage"
	"github.com/tordrt/dbtlineage/internal/artifact"
	"github.com/tordrt/dbtlineage/internal/config"
	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/db"
	"github.com/tordrt/dbtlineage/internal/enrich"
	"github.com/tordrt/dbtlineage/internal/export"
	"github.com/tordrt/dbtlineage/internal/formatter"
	"github.com/tordrt/dbtlineage/internal/mcpserver"
)

var version = "dev"

var (
	configPath      string
	envFiles        []string
	projectsDir     string
	outputFile      string
	htmlFile        string
	docsDir         string
	docsFormat      string
	contextStrategy string
	describerName   string
	modelName       string
	timeout         time.Duration
	cacheSize       int
	dbURL           string
	upload          bool
	runID           string
	verbose         bool
	logFormat       string

	serveInput     string
	serveTransport string
	serveAddr      string
)

var rootCmd = &cobra.Command{
	Use:   "dbtlineage [project-dir...]",
	Short: "Aggregate dbt projects into one lineage graph",
	Long: `dbtlineage reads the compiled manifests of several dbt projects, links their models
into one cross-project dependency graph, optionally generates a description for every
column, and exports the result as JSON.`,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              run,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an exported lineage file as MCP tools",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "HCL configuration file")
	rootCmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "Environment files to load (default: .env)")
	rootCmd.Flags().StringVar(&projectsDir, "projects-dir", "", "Directory whose subdirectories are dbt projects")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", config.DefaultOutput, "Output JSON file")
	rootCmd.Flags().StringVar(&htmlFile, "html", "", "Also render an interactive HTML graph to this file")
	rootCmd.Flags().StringVarP(&docsDir, "docs-dir", "d", "", "Also write per-model documentation into this directory")
	rootCmd.Flags().StringVarP(&docsFormat, "docs-format", "f", "markdown", "Documentation format: text or markdown")
	rootCmd.Flags().StringVar(&contextStrategy, "context-strategy", "basic", "Context sent with each column: basic or code")
	rootCmd.Flags().StringVar(&describerName, "describer", config.BackendHuggingFace, "Description backend: huggingface, gemini or none")
	rootCmd.Flags().StringVar(&modelName, "model", "", "Model used by the description backend")
	rootCmd.Flags().DurationVar(&timeout, "timeout", config.DefaultTimeout, "Timeout of each description call")
	rootCmd.Flags().IntVar(&cacheSize, "cache-size", config.DefaultCacheSize, "Cached descriptions (0 disables the cache)")
	rootCmd.Flags().StringVar(&dbURL, "db-url", "", "Also store the lineage in this database (postgres://, mysql:// or sqlite://)")
	rootCmd.Flags().BoolVar(&upload, "upload", false, "Upload the generated files to S3-compatible storage")
	rootCmd.Flags().StringVar(&runID, "run-id", "", "Object prefix for uploads (default: random UUID)")

	serveCmd.Flags().StringVarP(&serveInput, "input", "i", config.DefaultOutput, "Exported lineage file")
	serveCmd.Flags().StringVar(&serveTransport, "transport", mcpserver.TransportStdio, "MCP transport: stdio or http")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Listen address for the http transport")
	rootCmd.AddCommand(serveCmd)
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd.ErrOrStderr(), logFormat, verbose)
	if err != nil {
		return err
	}
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

func newLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", format)
	}
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config, args []string, getenv func(string) string) {
	if len(args) > 0 {
		cfg.Projects = args
	}
	if flags.Changed("projects-dir") {
		cfg.ProjectsDir = projectsDir
	}
	if flags.Changed("output") {
		cfg.Output = outputFile
	}
	if flags.Changed("html") {
		cfg.HTML = htmlFile
	}
	if flags.Changed("docs-dir") {
		cfg.DocsDir = docsDir
	}
	if flags.Changed("docs-format") {
		cfg.DocsFormat = docsFormat
	}
	if flags.Changed("context-strategy") {
		cfg.Describer.ContextStrategy = contextStrategy
	}
	if flags.Changed("describer") {
		cfg.Describer.Backend = strings.ToLower(describerName)
		cfg.Describer.Explicit = true
		cfg.ResolveAPIKey(getenv)
	}
	if flags.Changed("model") {
		cfg.Describer.Model = modelName
	}
	if flags.Changed("timeout") {
		cfg.Describer.Timeout = timeout
	}
	if flags.Changed("cache-size") {
		cfg.Describer.CacheSize = cacheSize
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = dbURL
	}
	if upload {
		cfg.EnableUpload(getenv)
	}
	if flags.Changed("run-id") && cfg.Upload != nil {
		cfg.Upload.RunID = runID
	}
}

// contextStrategyFor keeps unknown names so enrichment can warn and fall back.
func contextStrategyFor(name string) enrich.Strategy {
	if s, ok := enrich.ParseStrategy(name); ok {
		return s
	}
	return enrich.Strategy(name)
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := ctxlog.Component(ctx, "cli")

	config.LoadDotEnv(envFiles...)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), cfg, args, os.Getenv)
	backend := cfg.Describer.Backend
	if cfg.DisableDescriberWithoutKey() {
		logger.Info("no API key found, description generation disabled", "backend", backend)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	paths, err := dbtlineage.ProjectPaths(cfg.ProjectsDir, cfg.Projects)
	if err != nil {
		return err
	}

	describer, err := dbtlineage.NewDescriber(ctx, dbtlineage.DescriberOptions{
		Backend:   cfg.Describer.Backend,
		APIKey:    cfg.Describer.APIKey,
		Model:     cfg.Describer.Model,
		Timeout:   cfg.Describer.Timeout,
		CacheSize: cfg.Describer.CacheSize,
	})
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	result := dbtlineage.Run(ctx, paths, &dbtlineage.Options{
		Describer: describer,
		Enrich: enrich.Options{
			Strategy: contextStrategyFor(cfg.Describer.ContextStrategy),
			Progress: func(done, total int) {
				fmt.Fprintf(stderr, "\rGenerating descriptions: %d/%d", done, total)
				if done == total {
					fmt.Fprintln(stderr)
				}
			},
		},
		Output: cfg.Output,
	})
	if result.Aggregator.Stats.Canceled {
		fmt.Fprintln(stderr)
	}
	if !result.Written {
		fmt.Fprintln(cmd.OutOrStdout(), "No data to process. Check project loading.")
		return nil
	}

	doc := result.Document
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d models and %d dependencies to %s\n", doc.Meta.NodeCount, doc.Meta.EdgeCount, cfg.Output)

	files := []string{cfg.Output}
	if cfg.HTML != "" {
		if err := writeHTML(cfg.HTML, doc); err != nil {
			return err
		}
		files = append(files, cfg.HTML)
	}
	if cfg.DocsDir != "" {
		multi := formatter.NewMultiFileFormatter(cfg.DocsDir, cfg.DocsFormat)
		if err := multi.Format(doc); err != nil {
			return fmt.Errorf("failed to write documentation: %w", err)
		}
	}
	if cfg.DatabaseURL != "" {
		if err := saveToDatabase(ctx, cfg.DatabaseURL, doc); err != nil {
			return err
		}
	}
	if cfg.Upload != nil {
		if err := uploadFiles(ctx, cmd.OutOrStdout(), cfg.Upload, files); err != nil {
			return err
		}
	}

	logger.Debug("run finished", "processed", result.Aggregator.Stats.Processed, "failed", result.Aggregator.Stats.Failed)
	return nil
}

func writeHTML(path string, doc *export.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create HTML file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close HTML file: %v\n", err)
		}
	}()

	html := formatter.NewHTMLFormatter(f)
	html.Title = "dbt Model Lineage"
	if err := html.Format(doc); err != nil {
		return fmt.Errorf("failed to render HTML: %w", err)
	}
	return nil
}

func saveToDatabase(ctx context.Context, url string, doc *export.Document) error {
	store, err := db.Open(ctx, url)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close database connection: %v\n", err)
		}
	}()

	if err := store.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to store lineage: %w", err)
	}
	summary, err := store.Summary(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored lineage: %w", err)
	}
	ctxlog.Component(ctx, "cli").Info("stored lineage",
		"models", summary.Models, "columns", summary.Columns, "edges", summary.Edges)
	return nil
}

func uploadFiles(ctx context.Context, out io.Writer, u *config.Upload, files []string) error {
	store, err := artifact.NewS3Store(artifact.S3Config{
		Endpoint:  u.Endpoint,
		Region:    u.Region,
		AccessKey: u.AccessKey,
		SecretKey: u.SecretKey,
		Bucket:    u.Bucket,
		UseSSL:    u.UseSSL,
	})
	if err != nil {
		return err
	}

	id := u.RunID
	if id == "" {
		id = artifact.NewRunID()
	}
	links, err := artifact.Publish(ctx, store, id, files...)
	if err != nil {
		return err
	}
	printLinks(out, u.Bucket, links)
	return nil
}

func printLinks(out io.Writer, bucket string, links []artifact.Link) {
	for _, link := range links {
		fmt.Fprintf(out, "Uploaded s3://%s/%s\n  %s\n", bucket, link.Key, link.URL)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	doc, err := export.ReadFile(serveInput)
	if err != nil {
		return err
	}
	if err := doc.Verify(); err != nil {
		ctxlog.Component(ctx, "cli").Warn("lineage file was modified after export", "file", filepath.Base(serveInput), "error", err)
	}

	return mcpserver.Serve(ctx, mcpserver.New(doc, version), serveTransport, serveAddr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
