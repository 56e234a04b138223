package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/autofill/pkg/pipeline"
)

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
}

var stageLabels = map[pipeline.Stage]string{
	pipeline.StageFetch:   "Fetching page",
	pipeline.StageSchema:  "Reading database schema",
	pipeline.StageExtract: "Extracting record",
	pipeline.StageWrite:   "Writing row",
}

// stageSpinner renders pipeline events on a single spinner.
type stageSpinner struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	stop chan struct{}
	wg   sync.WaitGroup
}

func newStageSpinner() *stageSpinner {
	s := &stageSpinner{
		bar:  getSpinner(" Starting"),
		stop: make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				s.mu.Lock()
				_ = s.bar.Add(1)
				s.mu.Unlock()
			}
		}
	}()
	return s
}

func (s *stageSpinner) onEvent(e pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label, ok := stageLabels[e.Stage]
	if !ok {
		return
	}
	if e.Done {
		_ = s.bar.Clear()
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", color.GreenString("✓"), label, e.Message)
		return
	}
	s.bar.Describe(color.CyanString(" %s...", label))
}

func (s *stageSpinner) finish() {
	close(s.stop)
	s.wg.Wait()
	_ = s.bar.Finish()
}

func newFillCmd() *cobra.Command {
	var (
		databaseURL string
		pageURL     string
		model       string
		provider    string
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Import one web page as a new row of a Notion database",
		Long: `Fill fetches a web page, reads the Notion database's columns, asks the
model for a matching record and creates the row.

Keys are read from the environment (OPENAI_API_KEY, GEMINI_API_KEY,
NOTION_API_KEY) or the config file.

Examples:
  autofill fill --database-url https://www.notion.so/<id>?v=1 --url https://example.com/post
  autofill fill --database-url ... --url ... --provider ollama --model llama3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			p, closeFn, err := a.builder.Build(ctx, pipeline.Credentials{
				Model:    model,
				Provider: provider,
			})
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			return runFill(ctx, p, pipeline.Request{
				DatabaseURL: databaseURL,
				URL:         pageURL,
				Model:       model,
			})
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Notion database URL")
	cmd.Flags().StringVar(&pageURL, "url", "", "Page to import")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier (overrides llm.model)")
	cmd.Flags().StringVar(&provider, "provider", "", "Model provider: openai, ollama or gemini")
	_ = cmd.MarkFlagRequired("database-url")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runFill(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request) error {
	spin := newStageSpinner()
	p.OnEvent = spin.onEvent
	start := time.Now()
	res, err := p.Run(ctx, req)
	spin.finish()
	if err != nil {
		color.Red("✗ Import failed: %v", err)
		return err
	}

	color.Green("✓ Row created in %s", time.Since(start).Round(time.Millisecond))
	fmt.Println(color.New(color.FgCyan, color.Underline).Sprint(res.Page.URL))
	return nil
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.History.URL == "" {
				return errors.New("history is disabled: set history.url or DATABASE_URL")
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.history.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				color.Yellow("No imports yet")
				return nil
			}
			when := color.New(color.FgHiBlack).SprintFunc()
			for _, r := range recs {
				fmt.Printf("%s  %s\n    %s %s\n",
					when(r.CreatedAt.Local().Format(time.DateTime)),
					r.SourceURL,
					color.CyanString("→"),
					r.PageURL)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of imports to list")
	return cmd
}
