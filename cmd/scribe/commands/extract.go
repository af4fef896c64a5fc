package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server"
	"github.com/Quantum-369/arxiv-scribe-view/internal/util"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/extract"

	"github.com/spf13/cobra"
)

var (
	extractJSON    bool
	extractPageCap int
	extractBackend string
)

var extractCmd = &cobra.Command{
	Use:   "extract <source>",
	Short: "Print the text of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the full result as JSON")
	extractCmd.Flags().IntVar(&extractPageCap, "page-cap", 0, "pages to read, -1 for all (default from PDF_PAGE_CAP)")
	extractCmd.Flags().StringVar(&extractBackend, "backend", "", "pdf, fitz or poppler (default from PDF_TEXT_BACKEND)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	source, err := resolveSource(args[0])
	if err != nil {
		return err
	}

	backend := extractBackend
	if backend == "" {
		backend = util.GetEnvString("PDF_TEXT_BACKEND", "pdf")
	}
	dec, err := server.NewDecoder(backend)
	if err != nil {
		return err
	}

	cfg := server.ExtractConfig()
	if cmd.Flags().Changed("page-cap") {
		cfg.PageCap = extractPageCap
		if cfg.PageCap == 0 {
			cfg.PageCap = -1
		}
	}

	engine := extract.NewEngine(extract.NewEngineParams{
		Fetcher: newFetcher(),
		Decoder: dec,
		Config:  cfg,
	})
	res := engine.ExtractURL(ctx, source)

	if extractJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if res.Text != "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	}

	switch {
	case res.Cancelled():
		return res.Err
	case res.Error != "":
		return errors.New(res.Error)
	}
	return nil
}
