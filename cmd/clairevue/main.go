// ClaireVue is a search backend that answers web queries with a
// streamed, citation-grounded LLM summary.
//
// It exposes an HTTP API that streams each query's evolving state as
// server-sent events, plus lazily loaded image and YouTube sections,
// and a CLI for one-shot queries. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	clairevue serve              Start the API server
//	clairevue init [dir]         Write an example config.yaml
//	clairevue ask <query>        Answer a single query on stdout
//	clairevue cache purge        Delete every cached document
//	clairevue version            Print version and build information
//	clairevue -o json version    Output version information as JSON
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// commands can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the clairevue command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stderr for ask and cache, stdout for serve.
//   - args is os.Args[1:].
//
// The command tree is built per call so no flag state leaks between
// invocations.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	outputFmt  string // "text" (default) or "json"
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "clairevue",
		Short: "ClaireVue - answer engine backed by web search",
		Long: `ClaireVue answers web queries with a streamed, citation-grounded summary.

Config search order:
  ./config.yaml, ~/.config/clairevue/config.yaml, /etc/clairevue/config.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.outputFmt != "text" && opts.outputFmt != "json" {
				return fmt.Errorf("unknown output format: %q (expected text or json)", opts.outputFmt)
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: auto-discover)")
	root.PersistentFlags().StringVarP(&opts.outputFmt, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(opts),
		newInitCmd(),
		newAskCmd(opts),
		newCacheCmd(opts),
		newVersionCmd(opts),
	)
	return root
}
