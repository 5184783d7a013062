package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thelastpoet/Sentinel/pkg/policy"
)

// NewConfigCmd groups policy config operations.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Policy configuration operations",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the policy config and the resolved runtime, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			cfg, err := policy.Load(settings.ConfigPath)
			if err != nil {
				return err
			}
			rt, err := policy.ResolveRuntime(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy config OK: %s\n", rt.PolicyVersion)
			return nil
		},
	}
}
