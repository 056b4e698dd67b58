// Package cmd wires omni's cobra command tree to internal/service: it
// owns argument parsing, prompts, and terminal rendering, and never talks
// to ENVCACHE, SYNCOP, or a backend directly.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"omni/internal/config"
	"omni/internal/errs"
	"omni/internal/service"
)

var (
	cfgFlags struct {
		dataHome string
		debug    bool
		noColor  bool
	}

	svc *service.Service
)

// Execute builds the root command and runs it. main calls this and exits
// with its return code.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		// SilenceErrors defers all error rendering to this one place, so
		// a bootstrap failure, a cobra-level flag error, and a subcommand
		// error all go through the same taxonomy-aware renderer exactly
		// once.
		errs.NewRenderer(os.Stderr, wantColor()).Render("", 0, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "omni",
		Short:         "Per-project developer environment orchestrator",
		Long:          `omni resolves, installs, and activates the tool versions a project's .omni.yaml manifest declares, and keeps a shell's environment in sync with them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return shutdown()
		},
	}

	root.PersistentFlags().StringVar(&cfgFlags.dataHome, "data-home", "", "override the omni data directory (defaults to $OMNI_DATA_HOME or the XDG data dir)")
	root.PersistentFlags().BoolVar(&cfgFlags.debug, "debug", false, "enable verbose debug logging")
	root.PersistentFlags().BoolVar(&cfgFlags.noColor, "no-color", false, "disable colored error output")

	root.AddCommand(newUpCmd())
	root.AddCommand(newDownCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newHookCmd())
	root.AddCommand(newMonitorCmd())

	return root
}

// bootstrap loads Settings, applies flag overrides, and opens the Service
// every subcommand shares. Run once per process via PersistentPreRunE
// rather than per-command, since every subcommand needs the same handles.
func bootstrap() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfgFlags.dataHome != "" {
		cfg.DataHome = cfgFlags.dataHome
	}
	if cfgFlags.debug {
		cfg.Debug = true
	}
	if cfgFlags.noColor {
		cfg.NoColor = true
	}

	svc, err = service.NewService(cfg)
	if err != nil {
		return err
	}
	return nil
}

func shutdown() error {
	if svc == nil {
		return nil
	}
	return svc.Close()
}

// wantColor reports whether error/status output should be colored: never
// when --no-color (or omni.ini's no_color) is set, otherwise only when
// stderr is an actual terminal.
func wantColor() bool {
	if svc != nil && svc.Config().NoColor {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
