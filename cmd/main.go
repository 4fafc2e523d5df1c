package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/logger"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/tui"
)

// Build variables set by ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:   "pdf-rag",
		Short: "Ask questions about a folder of PDFs",
		Long: `pdf-rag indexes the PDF files of a directory into a local vector index and
answers questions about them with a hosted language model.

Press ctrl+r inside the shell to (re)build the index, type a question and
press enter to ask it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgFile, verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ./config.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pdf-rag %s (%s) built on %s\n", version, commit, date)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func run(ctx context.Context, cfgFile string, verbose bool) error {
	// credentials usually live in .env, a missing file is fine
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	logFile, err := logger.Setup(cfg.Log, verbose)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("index", cfg.Index.Backend).
		Str("embed_model", cfg.EmbedLLM.Model).
		Str("inference_model", cfg.InferenceLLM.Model).
		Msg("Starting")

	embedder, err := embedding.NewEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	llm, err := llmservice.NewLLM(ctx, &cfg.InferenceLLM, cfg.AWS)
	if err != nil {
		return fmt.Errorf("failed to initialize llm: %w", err)
	}
	store, err := rag.NewStore(cfg.Index)
	if err != nil {
		return err
	}

	svc, err := rag.NewRAG(cfg,
		embedding.NewClient(embedder, cfg.EmbedLLM.BatchSize),
		llmservice.NewGenerator(llm, &cfg.InferenceLLM),
		store,
	)
	if err != nil {
		return err
	}

	if _, err := tea.NewProgram(tui.New(svc, cfg.Timeout), tea.WithAltScreen()).Run(); err != nil {
		log.Error().Err(err).Msg("Shell exited with error")
		return err
	}
	return nil
}
