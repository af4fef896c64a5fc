package commands

import (
	"os"

	"github.com/Quantum-369/arxiv-scribe-view/internal/server"
	"github.com/Quantum-369/arxiv-scribe-view/internal/util"
	fileio "github.com/Quantum-369/arxiv-scribe-view/pkg/loader/io"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger/console"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/paper"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Extract text from and render arXiv PDFs",
	Long: `scribe runs the extraction engine and render pipeline without the HTTP
server. Sources are local PDF files, file:// URLs, arXiv identifiers or
http(s) links. Settings come from the same environment variables as the
server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.LoadEnv()
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  verbose || util.GetEnvBool("DEBUG", false),
			Output: os.Stderr,
		}))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// resolveSource keeps existing files as they are and normalises everything
// else to a PDF URL.
func resolveSource(arg string) (string, error) {
	if fileio.IsLocal(arg) {
		path, err := fileio.LocalPath(arg)
		if err == nil {
			if _, err := os.Stat(path); err == nil {
				return arg, nil
			}
		}
	}
	return paper.PDFURL(arg)
}

func newFetcher() *fileio.FileFetcher {
	return fileio.NewFileFetcher(fileio.NewFileFetcherParams{Next: server.NewFetcher()})
}
