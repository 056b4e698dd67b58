package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"omni/internal/service"
	"omni/internal/util"
)

func newUpCmd() *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:   "up [path]",
		Short: "Resolve and install the current project's manifest",
		Long: `up reads .omni.yaml at the work directory root (the current directory,
or path if given), resolves and installs every tool it declares, and
commits the result as an EnvVersion.

If another omni process already holds the work directory's lock, up
attaches to that run and replays its progress instead of starting a
second, redundant install.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			progress := newCLIProgress()
			result, err := svc.Up(cmd.Context(), service.UpOptions{
				WorkdirPath: dir,
				Force:       force,
				KillConfirm: func(pid int) bool {
					progress.finish()
					return util.AskYN(fmt.Sprintf("holder process %d looks stuck, kill it?", pid), false)
				},
			}, progress)
			progress.finish()
			if err != nil {
				return err
			}

			if result.Attached {
				printf("attached to an in-progress up; environment %s is active\n", result.EnvVersionID)
				return nil
			}
			switch {
			case result.NewEnv:
				printf("up committed new environment %s\n", result.EnvVersionID)
			case result.ReplacedEnv:
				printf("up replaced the active environment with %s\n", result.EnvVersionID)
			default:
				printf("up: environment %s already active, nothing to do\n", result.EnvVersionID)
			}
			return nil
		},
	}

	c.Flags().BoolVar(&force, "force", false, "don't share a running holder's cached resolution; re-resolve everything")
	return c
}
