package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dirAgent string
	dirPath  string
	dirJSON  bool
)

func init() {
	rootCmd.AddCommand(dirCmd)
	dirCmd.Flags().StringVar(&dirAgent, "agent", "", "Agent ID (required)")
	dirCmd.Flags().StringVar(&dirPath, "path", "", "Directory to check (required)")
	dirCmd.Flags().BoolVar(&dirJSON, "json", false, "Output JSON")
	dirCmd.MarkFlagRequired("agent")
	dirCmd.MarkFlagRequired("path")
}

var dirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Check directory access for an agent",
	Long: "Canonicalizes the path (home expansion, .., symlinks) and checks it\n" +
		"against the blocked system prefixes and the agent's maturity-scoped\n" +
		"allowed prefixes.",
	RunE: runDir,
}

func runDir(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	level, err := a.registry.Maturity(context.Background(), dirAgent)
	if err != nil {
		return err
	}
	d, err := a.dirs.Resolve(dirAgent, dirPath, level)
	if err != nil {
		return err
	}

	if dirJSON {
		out, _ := json.MarshalIndent(d, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	verdict := "DENIED"
	if d.Allowed {
		verdict = "ALLOWED"
		if d.SuggestOnly {
			verdict = "ALLOWED (suggest-only)"
		}
	}
	fmt.Printf("%s: %s\n", verdict, d.Reason)
	fmt.Printf("resolved: %s\n", d.ResolvedPath)
	return nil
}
