package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"omni/internal/service"
)

func newCleanupCmd() *cobra.Command {
	var after time.Duration

	c := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove installed tool versions nothing references anymore",
		Long: `cleanup scans ENVCACHE for installed tool versions idle longer than
--after (default: the configured cleanup_after_h) with no remaining
EnvVersion referencing them, and removes their install directories.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := svc.Cleanup(cmd.Context(), service.CleanupOptions{CleanupAfter: after})
			if err != nil {
				return err
			}

			if len(result.Removed) == 0 {
				printf("cleanup: nothing to remove\n")
			}
			for _, a := range result.Removed {
				printf("removed %s %s@%s\n", a.Backend, a.InstallKey, a.Version)
			}
			for _, e := range result.Errors {
				printf("error: %v\n", e)
			}
			if len(result.Errors) > 0 {
				return result.Errors[0]
			}
			return nil
		},
	}

	c.Flags().DurationVar(&after, "after", 0, "minimum idle duration before an install is eligible for removal (default: configured cleanup_after_h)")
	return c
}
