package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var activateFlags struct {
	tenant string
	key    string
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Point a tenant at a published artifact",
	Long: `Move a tenant's active pointer to an artifact that is already published in
the configured cache. Use it to promote a draft compile or to roll back to an
earlier version. The artifact's checksum is verified before the pointer moves.

Examples:
  switchboard activate --tenant acme --key policy:artifact:acme:v3:1f2e...`,
	RunE: activateArtifact,
}

func init() {
	rootCmd.AddCommand(activateCmd)

	activateCmd.Flags().StringVarP(&activateFlags.tenant, "tenant", "t", "", "tenant ID")
	activateCmd.Flags().StringVarP(&activateFlags.key, "key", "k", "", "artifact cache key")
	_ = activateCmd.MarkFlagRequired("tenant")
	_ = activateCmd.MarkFlagRequired("key")
}

func activateArtifact(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(&cfg.Telemetry.Logging)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.compiler.Activate(ctx, activateFlags.tenant, activateFlags.key); err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "✓ %s now serves %s\n", activateFlags.tenant, activateFlags.key)
	return nil
}
