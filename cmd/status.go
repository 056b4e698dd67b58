package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"omni/internal/service"
	"omni/internal/util"
)

func newStatusCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "status [path]",
		Short: "Show the current project's assigned environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			result, err := svc.Status(cmd.Context(), service.StatusOptions{WorkdirPath: dir})
			if err != nil {
				return err
			}

			printf("workdir: %s\n", result.WorkdirID)
			if result.Env == nil {
				printf("no environment assigned (run `omni up`)\n")
				return nil
			}

			env := result.Env
			printf("environment: %s\n", env.EnvVersionID)
			printf("created: %s ago\n", util.FormatDuration(time.Since(env.CreatedAt)))
			if len(env.Versions) == 0 {
				printf("tools: (none)\n")
				return nil
			}
			printf("tools:\n")
			for _, v := range env.Versions {
				printf("  %-12s %-10s %s (%s)\n", v.Tool, v.Version, v.BinPath, v.Backend)
			}
			return nil
		},
	}
	return c
}
