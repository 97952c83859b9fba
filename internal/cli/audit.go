package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avoronkov/warden/internal/audit"
	"github.com/avoronkov/warden/internal/config"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the execution audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	Long: "Walks the JSONL audit log and checks that every entry's prev_hash\n" +
		"matches the hash of the previous line. Any tampering breaks the chain.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		n, err := audit.Verify(cfg.AuditLogPath)
		if err != nil {
			return fmt.Errorf("chain verification failed after %d entries: %w", n, err)
		}
		fmt.Printf("audit chain intact: %d entries verified\n", n)
		return nil
	},
}
