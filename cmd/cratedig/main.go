// Package main is the cratedig CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/audio"
	"github.com/hyperjump/cratedig/internal/catalog"
	"github.com/hyperjump/cratedig/internal/cli"
	"github.com/hyperjump/cratedig/internal/config"
	"github.com/hyperjump/cratedig/internal/fingerprint"
	"github.com/hyperjump/cratedig/internal/library"
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/scanner"
	"github.com/hyperjump/cratedig/internal/server"
	"github.com/hyperjump/cratedig/internal/storage"
	"github.com/hyperjump/cratedig/internal/tasks"
	"github.com/hyperjump/cratedig/internal/watcher"
	"github.com/hyperjump/cratedig/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/cratedig/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, so running from a project checkout
// uses the project's config. Returns the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "scan":
		runScan()
	case "duplicates":
		runDuplicates()
	case "organize":
		runOrganize()
	case "analyze":
		runAnalyze()
	case "search":
		runSearch()
	case "stats":
		runStats()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "tasks":
		runTasks()
	case "version", "--version", "-v":
		fmt.Printf("cratedig version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// signalContext is cancelled on SIGINT or SIGTERM so long scans stop cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseOutput(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

// argsReorder moves flags that appear after positional arguments to the
// front. Go's flag package stops at the first non-flag argument, so
// "cratedig scan ~/Samples --analyze" would otherwise leave --analyze unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildSearchQuery joins all positional args so multi-word queries work the
// same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watch events, per-file scans, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchSvc := watcher.New(
		components.Scanner,
		cfg.Watch.Directories,
		cfg.Watch.RecursiveOrDefault(),
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	taskManager := tasks.NewManager(tasks.WithLogger(logger))
	srv := server.NewServer(
		components.Library,
		components.Storage,
		taskManager,
		cfg,
		logger,
		watchSvc,
		resolvedConfigPath,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// progressPrinter reports each phase once and its final count on stderr.
type progressPrinter struct {
	w     io.Writer
	phase string
}

func (p *progressPrinter) report(phase string, completed, total int, _ string) {
	if phase != p.phase {
		if p.phase != "" {
			fmt.Fprintln(p.w)
		}
		p.phase = phase
		fmt.Fprintf(p.w, "%-14s", phase)
	}
	if total > 0 && completed == total {
		fmt.Fprintf(p.w, " %d/%d", completed, total)
	}
}

func (p *progressPrinter) done() {
	if p.phase != "" {
		fmt.Fprintln(p.w)
	}
}

// setupDirect loads config and opens local storage for one-shot commands.
func setupDirect(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		fatalf("Failed to initialize: %v", err)
	}
	return cfg, logger, components
}

func runScan() {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	analyze := fs.Bool("analyze", false, "also measure loudness and quality (default from config scan.analyze)")
	serverURL := fs.String("server", "", "run the scan as a task on this server instead of locally")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fatalf("Usage: cratedig scan [flags] <directory>")
	}
	format := parseOutput(*outputFormat)
	if *serverURL != "" {
		var analyzeFlag *bool
		if *analyze {
			analyzeFlag = analyze
		}
		scanViaHTTP(*serverURL, fs.Arg(0), analyzeFlag, format)
		return
	}

	cfg, logger, components := setupDirect(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	doAnalyze := cfg.Scan.Analyze || *analyze
	if doAnalyze && !components.Library.CanAnalyze() {
		fmt.Fprintln(os.Stderr, "ffmpeg not available, skipping analysis")
	}
	ctx, stop := signalContext()
	defer stop()

	progress := &progressPrinter{w: os.Stderr}
	result, err := components.Library.ScanDirectory(ctx, fs.Arg(0), doAnalyze, progress.report)
	progress.done()
	if err != nil {
		fatalf("Scan failed: %v", err)
	}
	if err := cli.WriteScanResult(os.Stdout, result, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// scanViaHTTP starts a scan task on the server and polls it until it
// finishes. Interrupting the command cancels the task.
func scanViaHTTP(serverURL, dir string, analyze *bool, format cli.OutputFormat) {
	abs, _ := filepath.Abs(dir)
	body, _ := json.Marshal(map[string]interface{}{"directory": abs, "analyze": analyze})
	resp, err := http.Post(serverURL+"/api/v1/scan", "application/json", bytes.NewReader(body))
	if err != nil {
		fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		fatalf("Scan failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var started struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		fatalf("Decode response: %v", err)
	}

	ctx, stop := signalContext()
	defer stop()
	task, err := waitTask(ctx, serverURL, started.TaskID, func(t models.Task) {
		if format == cli.OutputText {
			fmt.Fprintf(os.Stderr, "\r%-14s %5.1f%%", t.Phase, t.Progress)
		}
	})
	if format == cli.OutputText {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		if ctx.Err() != nil {
			_ = cancelTask(serverURL, started.TaskID)
		}
		fatalf("Scan failed: %v", err)
	}
	if task.Status != models.TaskCompleted || task.Result == nil {
		_ = cli.WriteTask(os.Stderr, task, cli.OutputText)
		os.Exit(1)
	}
	if err := cli.WriteScanResult(os.Stdout, task.Result, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// waitTask polls a task until it reaches a final state.
func waitTask(ctx context.Context, serverURL, id string, onUpdate func(models.Task)) (models.Task, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		var t models.Task
		if err := getJSON(serverURL+"/api/v1/tasks/"+url.PathEscape(id), &t); err != nil {
			return t, err
		}
		if onUpdate != nil {
			onUpdate(t)
		}
		if t.Status.Done() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}

func cancelTask(serverURL, id string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/tasks/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func runTasks() {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	cancel := fs.Bool("cancel", false, "cancel the given task")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*outputFormat)

	if fs.NArg() == 0 {
		var out struct {
			Tasks []models.Task `json:"tasks"`
		}
		if err := getJSON(*serverURL+"/api/v1/tasks", &out); err != nil {
			fatalf("List failed: %v", err)
		}
		if format == cli.OutputJSON {
			if err := cli.WriteJSON(os.Stdout, out.Tasks); err != nil {
				fatalf("Output failed: %v", err)
			}
			return
		}
		for _, t := range out.Tasks {
			_ = cli.WriteTask(os.Stdout, t, format)
		}
		return
	}
	id := fs.Arg(0)
	if *cancel {
		if err := cancelTask(*serverURL, id); err != nil {
			fatalf("Cancel failed: %v", err)
		}
		fmt.Printf("Cancelling: %s\n", id)
		return
	}
	var t models.Task
	if err := getJSON(*serverURL+"/api/v1/tasks/"+url.PathEscape(id), &t); err != nil {
		fatalf("Task lookup failed: %v", err)
	}
	if err := cli.WriteTask(os.Stdout, t, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDuplicates() {
	fs := flag.NewFlagSet("duplicates", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	prefixLen := fs.Int("prefix-len", 0, "fingerprint prefix length for near-duplicate buckets (default from config)")
	threshold := fs.Float64("threshold", -1, "near-duplicate similarity threshold in percent (default from config)")
	exactThreshold := fs.Float64("exact-threshold", -1, "exact-duplicate similarity threshold in percent (default from config)")
	jsonOut := fs.Bool("json", false, "write JSON instead of a table")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fatalf("Usage: cratedig duplicates [flags] <directory>")
	}
	format := parseOutput(*outputFormat)
	if *jsonOut {
		format = cli.OutputJSON
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	applyDuplicateFlags(&cfg.Duplicates, *prefixLen, *exactThreshold, *threshold)
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid duplicate settings: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	ctx, stop := signalContext()
	defer stop()
	progress := &progressPrinter{w: os.Stderr}
	result, err := components.Library.ScanDirectory(ctx, fs.Arg(0), false, progress.report)
	progress.done()
	if err != nil {
		fatalf("Duplicate scan failed: %v", err)
	}
	if err := cli.WriteDuplicates(os.Stdout, result.Duplicates, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// applyDuplicateFlags overrides the configured settings with the flags that
// were set. A zero prefix length or a negative threshold means unset.
func applyDuplicateFlags(d *config.DuplicatesConfig, prefixLen int, exact, near float64) {
	if prefixLen > 0 {
		d.PrefixLen = prefixLen
	}
	if exact >= 0 {
		d.ExactThreshold = &exact
	}
	if near >= 0 {
		d.NearThreshold = &near
	}
}

func runOrganize() {
	fs := flag.NewFlagSet("organize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outDir := fs.String("out", "", "destination directory (default from config organize.output_dir)")
	apply := fs.Bool("apply", false, "move files; without it organize only reports the plan")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fatalf("Usage: cratedig organize [flags] <directory>")
	}
	format := parseOutput(*outputFormat)

	cfg, logger, components := setupDirect(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	dest := *outDir
	if dest == "" {
		dest = cfg.Organize.OutputDir
	}
	if dest == "" {
		fatalf("No output directory: pass --out or set organize.output_dir")
	}
	dryRun := cfg.Organize.DryRunOrDefault() && !*apply

	ctx, stop := signalContext()
	defer stop()
	progress := &progressPrinter{w: os.Stderr}
	plan, outcome, err := components.Library.Organize(ctx, fs.Arg(0), dest, dryRun, progress.report)
	progress.done()
	if err != nil {
		fatalf("Organize failed: %v", err)
	}
	if err := cli.WriteOrganize(os.Stdout, plan, outcome, format); err != nil {
		fatalf("Output failed: %v", err)
	}
	if len(outcome.Errors) > 0 {
		os.Exit(1)
	}
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fatalf("Usage: cratedig analyze [flags] <file>")
	}
	format := parseOutput(*outputFormat)

	_, logger, components := setupDirect(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	if !components.Library.CanAnalyze() {
		fatalf("Analysis needs ffmpeg and ffprobe; check scan.ffmpeg_path and scan.ffprobe_path")
	}

	ctx, stop := signalContext()
	defer stop()
	path, _ := filepath.Abs(fs.Arg(0))
	analysis, err := components.Library.Analyze(ctx, path)
	if err != nil {
		fatalf("Analyze failed: %v", err)
	}
	if err := cli.WriteAnalysis(os.Stdout, analysis, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: cratedig search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Filenames, folders, formats and quality folders are searched. Filename
matches rank first. When nothing matches, a misspelled word is corrected
from the library's own vocabulary and the search is retried.

Examples:
  cratedig search dark pad
  cratedig search --fuzzy snaer tight
  cratedig search --output json kick 808
`)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty opens the library directly (stop the server first)")
	limit := fs.Int("limit", 0, "number of results (default from config)")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseOutput(*outputFormat)

	var result *library.SearchResult
	if *serverURL != "" {
		res, err := searchViaHTTP(*serverURL, query, *limit, *fuzzy)
		if err != nil {
			fatalf("Search failed: %v", err)
		}
		result = res
	} else {
		_, logger, components := setupDirect(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		res, err := components.Library.Search(context.Background(), query, *limit, *fuzzy)
		if err != nil {
			fatalf("Search failed: %v", err)
		}
		result = res
	}
	if err := cli.WriteSearchResults(os.Stdout, result, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL, query string, limit int, fuzzy bool) (*library.SearchResult, error) {
	v := url.Values{}
	v.Set("q", query)
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if fuzzy {
		v.Set("fuzzy", "true")
	}
	var res library.SearchResult
	if err := getJSON(serverURL+"/api/v1/tracks/search?"+v.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// getJSON GETs u and decodes a 200 response into out.
func getJSON(u string, out any) error {
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty opens the library directly")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*outputFormat)

	dir := ""
	if fs.NArg() > 0 {
		dir, _ = filepath.Abs(fs.Arg(0))
	}
	var stats storage.LibraryStats
	if *serverURL != "" {
		u := *serverURL + "/api/v1/stats"
		if dir != "" {
			u += "?directory=" + url.QueryEscape(dir)
		}
		if err := getJSON(u, &stats); err != nil {
			fatalf("Stats failed: %v", err)
		}
	} else {
		_, logger, components := setupDirect(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		s, err := components.Library.Stats(context.Background(), dir)
		if err != nil {
			fatalf("Stats failed: %v", err)
		}
		stats = *s
	}
	if err := cli.WriteStats(os.Stdout, &stats, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Tracks           int64          `json:"tracks"`
	RunningTasks     int            `json:"running_tasks"`
	Analysis         bool           `json:"analysis"`
	DiskUsageBytes   *int64         `json:"disk_usage_bytes,omitempty"`
	WatchDirectories []string       `json:"watch_directories,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseOutput(*outputFormat)

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, logger, components := setupDirect(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		count, err := components.Storage.CountTracks(context.Background())
		if err != nil {
			fatalf("Count tracks failed: %v", err)
		}
		cc := components.Library.ClusterConfig()
		status = statusResponse{
			Tracks:   count,
			Analysis: components.Library.CanAnalyze(),
			Config: map[string]any{
				"prefix_len":         cc.PrefixLen,
				"exact_threshold":    cc.ExactThreshold,
				"near_threshold":     cc.NearThreshold,
				"database_path":      cfg.Storage.DatabasePath,
				"catalog_index_path": cfg.Storage.CatalogIndexPath,
			},
		}
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.CatalogIndexPath); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("tracks:             %d\n", status.Tracks)
	fmt.Printf("running_tasks:      %d\n", status.RunningTasks)
	fmt.Printf("analysis:           %t\n", status.Analysis)
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
	for _, d := range status.WatchDirectories {
		fmt.Printf("watching:           %s\n", d)
	}
	if len(status.Config) > 0 {
		fmt.Println()
		fmt.Println("# configuration")
		for _, key := range []string{"prefix_len", "exact_threshold", "near_threshold", "database_path", "catalog_index_path"} {
			if v, ok := status.Config[key]; ok {
				fmt.Printf("%-19s %v\n", key+":", v)
			}
		}
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: cratedig watch <add|remove|list> [path]")
		fmt.Println("  cratedig watch add <path>     Add directory to watch")
		fmt.Println("  cratedig watch remove <path>  Remove directory from watch")
		fmt.Println("  cratedig watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fatalf("Usage: cratedig watch add <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fatalf("Add failed (%d): %s", resp.StatusCode, string(b))
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fatalf("Usage: cratedig watch remove <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fatalf("Remove failed (%d): %s", resp.StatusCode, string(b))
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := getJSON(*serverURL+"/api/v1/watch/directories", &out); err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}

// Components holds initialized services.
type Components struct {
	Storage *storage.SQLiteStorage
	Catalog *catalog.BleveCatalog
	Scanner *scanner.Scanner
	Library *library.Library
}

func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	cat, err := catalog.NewBleveCatalog(cfg.Storage.CatalogIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	runner := audio.ExecRunner{}
	extractor := fingerprint.NewFFmpegExtractor(runner,
		fingerprint.WithBinary(cfg.Scan.FFmpegPath),
		fingerprint.WithSeconds(cfg.Scan.FingerprintSeconds),
		fingerprint.WithTimeout(cfg.Scan.Timeout()),
	)
	scanOpts := []scanner.Option{
		scanner.WithLogger(logger),
		scanner.WithCatalog(cat),
		scanner.WithExtensions(cfg.Scan.Extensions),
		scanner.WithWorkers(cfg.Scan.Workers),
	}
	analyzer := audio.NewAnalyzer(runner,
		audio.WithLogger(logger),
		audio.WithBinaries(cfg.Scan.FFmpegPath, cfg.Scan.FFprobePath),
		audio.WithTimeout(cfg.Scan.Timeout()),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := analyzer.Available(ctx); err != nil {
		logger.Warn("audio analysis disabled", zap.Error(err))
	} else {
		scanOpts = append(scanOpts, scanner.WithAnalyzer(analyzer))
	}
	sc := scanner.New(store, extractor, scanOpts...)

	lib := library.New(sc, store, cfg.Duplicates.Cluster(),
		library.WithLogger(logger),
		library.WithCatalog(cat),
		library.WithSearchConfig(library.SearchConfig{
			DefaultLimit:  cfg.Search.DefaultLimit,
			MaxLimit:      cfg.Search.MaxLimit,
			FilenameBoost: cfg.Search.FilenameBoost,
			Fuzziness:     cfg.Search.Fuzziness,
			MaxEdits:      cfg.Search.SuggestionEdit,
		}),
		library.WithRanking(cfg.Search.Ranking),
	)
	return &Components{Storage: store, Catalog: cat, Scanner: sc, Library: lib}, nil
}

func printUsage() {
	fmt.Println(`cratedig - audio library deduplication and organization

Usage:
  cratedig server [flags]                 Start the HTTP server
  cratedig scan [flags] <dir>             Fingerprint a directory and report duplicates
  cratedig duplicates [flags] <dir>       List duplicate groups
  cratedig organize [flags] <dir>         Plan or apply a library reorganization
  cratedig analyze [flags] <file>         Measure loudness and quality of one file
  cratedig search [flags] <query>         Search tracks by name
  cratedig stats [flags] [dir]            Show library statistics
  cratedig status [flags]                 Show server/storage status
  cratedig watch <add|remove|list>        Manage watched directories
  cratedig tasks [flags] [id]             List, show or cancel server tasks
  cratedig version                        Show version
  cratedig help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/cratedig/config.yaml)
  --output string    Output format: text or json (default: text)
  --debug            Enable debug logging

Duplicates Flags:
  --prefix-len int           Prefix length for near-duplicate buckets
  --threshold float          Near-duplicate similarity threshold (percent)
  --exact-threshold float    Exact-duplicate similarity threshold (percent)
  --json                     Same as --output json

Scan Flags:
  --analyze          Also measure loudness and quality
  --server string    Run the scan as a server task and wait for it

Organize Flags:
  --out string       Destination directory
  --apply            Move files (default is a dry run)

Search/Stats/Status Flags:
  --server string    Server URL. search and stats open the library directly unless set;
                     status defaults to http://localhost:8080.

Examples:
  cratedig server
  cratedig scan --analyze ~/Samples
  cratedig scan --server http://localhost:8080 ~/Samples
  cratedig duplicates --threshold 90 --json ~/Samples
  cratedig organize --out ~/Sorted ~/Samples
  cratedig organize --out ~/Sorted --apply ~/Samples
  cratedig search --fuzzy dark pad
  cratedig status --output json
  cratedig watch add ~/Samples`)
}
