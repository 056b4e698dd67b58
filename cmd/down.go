package cmd

import (
	"github.com/spf13/cobra"

	"omni/internal/service"
)

func newDownCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "down [path]",
		Short: "Remove the current project's assigned environment",
		Long: `down removes the per-workdir annotations (venvs, GOPATHs, ...) an up
installed and clears ENVCACHE's active-environment pointer. It does not
physically uninstall the underlying tool versions; a later cleanup pass
removes those once nothing references them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			progress := newCLIProgress()
			result, err := svc.Down(cmd.Context(), service.DownOptions{WorkdirPath: dir}, progress)
			progress.finish()
			if err != nil {
				return err
			}

			if result.Cleared {
				printf("down: %s is no longer active\n", result.WorkdirID)
			} else {
				printf("down: %s had no active environment\n", result.WorkdirID)
			}
			return nil
		},
	}
	return c
}
