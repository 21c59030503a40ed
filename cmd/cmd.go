package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/ayurchat/internal/logger"
	"github.com/xhad/ayurchat/pkg/tui"
	"github.com/xhad/ayurchat/server"
)

var (
	configPath string
	verbose    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ayurchat",
		Short: "Chat with an Ayurveda book",
		Long: "ayurchat indexes a PDF on first run and answers questions about it " +
			"with retrieval-augmented generation.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(verbose)
		},
		RunE: runChat,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml or ~/.config/ayurchat/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "chat",
			Short: "Open the interactive chat window",
			RunE:  runChat,
		},
		&cobra.Command{
			Use:   "repl",
			Short: "Chat line by line in the terminal",
			RunE:  runRepl,
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Serve chat sessions over a websocket",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "index",
			Short: "Build or load the index and report on it",
			RunE:  runIndex,
		},
	)

	return root
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.newSession()
	if err != nil {
		return err
	}

	model := tui.New(ctx, session, tui.Options{
		Summary:   a.summary(),
		Streaming: a.config.UI.Streaming,
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat window failed: %w", err)
	}
	return nil
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.newSession()
	if err != nil {
		return err
	}

	return runREPL(ctx, os.Stdin, os.Stdout, os.Stderr, session, a.config.UI.Streaming)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}

	srv, err := server.NewWSServer(server.Config{
		Addr:         a.config.Server.Addr,
		Pipeline:     p,
		SafetySuffix: a.config.Chat.SafetySuffix,
		Timeout:      a.config.Chat.Timeout,
		Streaming:    a.config.UI.Streaming,
		Summary:      a.summary(),
		WriteTimeout: a.config.Server.WriteTimeout,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.index.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	action := "Loaded"
	if a.indexer.Built() {
		action = "Built"
	}
	meta := a.index.Meta()
	color.Green("%s index at %s", action, a.backend.Location())
	fmt.Printf("  chunks:    %d\n", count)
	fmt.Printf("  window:    %d chars, %d overlap\n", meta.ChunkSize, meta.ChunkOverlap)
	fmt.Printf("  embedder:  %s\n", meta.EmbeddingModel)
	fmt.Printf("  source:    %s\n", meta.Source)
	if !meta.CreatedAt.IsZero() {
		fmt.Printf("  created:   %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}
