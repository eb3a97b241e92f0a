package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/ktsuji/budgetscan/internal/types"
	cfgPkg "github.com/ktsuji/budgetscan/pkg/config"
	"github.com/ktsuji/budgetscan/pkg/extractor"
	"github.com/ktsuji/budgetscan/pkg/mirror"
	"github.com/ktsuji/budgetscan/pkg/pipeline"
	"github.com/ktsuji/budgetscan/pkg/source"
	"github.com/ktsuji/budgetscan/pkg/store"
	"github.com/ktsuji/budgetscan/server"
)

type Flags struct {
	ConfigPath string
	SourceDir  string
	OutputDir  string
	LogLevel   string
	Model      string
	BaseURL    string
	DBUrl      string
	NotionDB   string
	Workers    int
	Serve      bool
	Addr       string
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Flags {
	var flags Flags

	flag.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&flags.SourceDir, "source-dir", "", "Directory containing budget PDF documents (required)")
	flag.StringVar(&flags.OutputDir, "output-dir", "", "Root directory for run artifacts")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.StringVar(&flags.Model, "model", "", "LLM model to use")
	flag.StringVar(&flags.BaseURL, "openai-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI-compatible server URL")
	flag.StringVar(&flags.DBUrl, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&flags.NotionDB, "notion-db", os.Getenv("NOTION_DATABASE_ID"), "Notion database ID for the workspace mirror")
	flag.IntVar(&flags.Workers, "workers", 0, "Extraction worker pool size")
	flag.BoolVar(&flags.Serve, "serve", false, "Run the WebSocket progress server instead of a one-shot batch")
	flag.StringVar(&flags.Addr, "addr", ":8080", "Listen address for the progress server")
	flag.Parse()

	return flags
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func loadConfig(flags Flags) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	// Command line flags override config file values
	if flags.Model != "" {
		cfg.LLM.Model = flags.Model
	}
	if flags.BaseURL != "" {
		cfg.LLM.BaseURL = flags.BaseURL
	}
	if flags.DBUrl != "" {
		cfg.Database.URL = flags.DBUrl
	}
	if flags.NotionDB != "" {
		cfg.Notion.DatabaseID = flags.NotionDB
	}
	if flags.OutputDir != "" {
		cfg.Pipeline.OutputDir = flags.OutputDir
	}
	if flags.Workers > 0 {
		cfg.Pipeline.Workers = flags.Workers
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config error: %v", e)
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	return cfg, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func buildComponents(cfg *cfgPkg.Config, onDocument func(name string)) (types.DocumentSource, types.RecordExtractor, types.RecordStore, types.WorkspaceMirror, error) {
	src := source.NewWithConfig(source.SourceConfig{
		OnProgress: onDocument,
	})

	ext, err := extractor.NewWithConfig(extractor.ExtractorConfig{
		BaseURL:     cfg.LLM.BaseURL,
		Token:       cfg.LLM.Token,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		RateLimit:   cfg.LLM.RateLimit,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Pipeline.RetryDelayMS) * time.Millisecond,
		CallTimeout: time.Duration(cfg.Pipeline.CallTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize extractor: %v", err)
	}

	recordStore, err := store.NewWithConfig(store.StoreConfig{
		ConnString:       cfg.Database.URL,
		MunicipalityID:   cfg.Database.MunicipalityID,
		MunicipalityName: cfg.Database.MunicipalityName,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize store: %v", err)
	}

	var workspaceMirror types.WorkspaceMirror
	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		m, err := mirror.NewWithConfig(mirror.MirrorConfig{Token: cfg.Notion.Token}, recordStore)
		if err != nil {
			recordStore.Close()
			return nil, nil, nil, nil, fmt.Errorf("failed to initialize mirror: %v", err)
		}
		workspaceMirror = m
	}

	return src, ext, recordStore, workspaceMirror, nil
}

func run(flags Flags) error {
	// Environment variables may come from a local .env file
	_ = godotenv.Load()

	setupLogger(flags.LogLevel)

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	if flags.Serve {
		return server.New(cfg).Start(flags.Addr)
	}

	if flags.SourceDir == "" {
		return fmt.Errorf("-source-dir is required")
	}

	color.Blue("\nStarting budget pipeline for %s\n", flags.SourceDir)

	enumBar := getSpinner("📄 Reading budget documents...")
	src, ext, recordStore, workspaceMirror, err := buildComponents(cfg, func(name string) {
		enumBar.Add(1)
	})
	if err != nil {
		return err
	}
	defer recordStore.Close()

	// Guards extractBar: progress callbacks arrive from extraction workers.
	var barMu sync.Mutex
	var extractBar *progressbar.ProgressBar

	p, err := pipeline.New(pipeline.PipelineConfig{
		SourceDir:        flags.SourceDir,
		OutputDir:        cfg.Pipeline.OutputDir,
		Workers:          cfg.Pipeline.Workers,
		MirrorDatabaseID: cfg.Notion.DatabaseID,
		OnStage: func(stage pipeline.Stage) {
			switch stage {
			case pipeline.StageExtracting:
				enumBar.Finish()
			case pipeline.StagePersisting:
				barMu.Lock()
				if extractBar != nil {
					extractBar.Finish()
				}
				barMu.Unlock()
				color.Blue("\n💾 Persisting records...\n")
			case pipeline.StageMirroring:
				color.Blue("🔄 Mirroring to workspace...\n")
			}
		},
		OnProgress: func(stage pipeline.Stage, done, total int) {
			if stage != pipeline.StageExtracting {
				return
			}
			barMu.Lock()
			defer barMu.Unlock()
			if extractBar == nil {
				extractBar = getProgressBar(total, "🤖 Extracting budget records...")
			}
			extractBar.Set(done)
		},
	}, src, ext, recordStore, workspaceMirror)
	if err != nil {
		return err
	}
	defer p.Release()

	result, err := p.Run(context.Background())
	if err != nil {
		return err
	}

	color.Green("\n✓ Processed %d documents\n", result.DocumentsProcessed)
	color.Green("✓ Extracted %d records (%d segments failed)\n", result.SegmentsExtracted, result.SegmentsFailed)
	color.Green("✓ Persisted %d records (%d failed)\n", result.RecordsPersisted, result.RecordsFailed)
	if result.RowsMirrored > 0 {
		color.Green("✓ Mirrored %d rows\n", result.RowsMirrored)
	}
	color.Green("✓ Results written to %s\n", result.ArtifactPath)

	return nil
}
