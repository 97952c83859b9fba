package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	checkAgent      string
	checkAction     string
	checkResource   string
	checkComplexity int
	checkJSON       bool
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkAgent, "agent", "", "Agent ID (required)")
	checkCmd.Flags().StringVar(&checkAction, "action", "", "Action type to check (required)")
	checkCmd.Flags().StringVar(&checkResource, "resource", "", "Resource scope")
	checkCmd.Flags().IntVar(&checkComplexity, "complexity", 1, "Task complexity 1-5")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output JSON")
	checkCmd.MarkFlagRequired("agent")
	checkCmd.MarkFlagRequired("action")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether an agent may perform an action (dry-run)",
	Long: "Evaluates the maturity ladder for one (agent, action, complexity)\n" +
		"triple without executing anything. Denials are recorded as blocked\n" +
		"triggers for the escalation workflow.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	d, err := a.gov.CanPerformAction(context.Background(), checkAgent, checkAction, checkResource, checkComplexity)
	if err != nil {
		return err
	}

	if checkJSON {
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
	if d.Degraded {
		fmt.Println("warning: decision computed while the agent registry was unreachable")
	}
	return nil
}
