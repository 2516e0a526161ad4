package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(defaultLogOptions(os.Getenv("LOG_MODE"), isatty.IsTerminal(os.Stderr.Fd()))),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("mindfulweb command failed")
		return 1
	}
	return 0
}

// defaultLogOptions picks console output for terminals and structured output
// otherwise. LOG_MODE still overrides it through LoggerFromEnv.
func defaultLogOptions(envMode string, terminal bool) pslog.Options {
	if strings.TrimSpace(envMode) == "" && !terminal {
		return pslog.Options{Mode: pslog.ModeStructured, NoColor: true}
	}
	return pslog.Options{Mode: pslog.ModeConsole, NoColor: !terminal}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mindfulweb",
		Short:         "Browser focus tracker agent and collector",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newAgentCmd())
	root.AddCommand(newCollectorCmd())
	root.AddCommand(newCtlCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}
