package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avoronkov/warden/internal/model"
)

var (
	triggersAll    bool
	resolveOutcome string
)

func init() {
	rootCmd.AddCommand(triggersCmd)
	triggersCmd.AddCommand(triggersListCmd, triggersRouteCmd, triggersResolveCmd)

	triggersListCmd.Flags().BoolVar(&triggersAll, "all", false, "Include resolved triggers")
	triggersResolveCmd.Flags().StringVar(&resolveOutcome, "outcome", "", "Resolution outcome (required)")
	triggersResolveCmd.MarkFlagRequired("outcome")
}

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Inspect and escalate blocked triggers",
}

var triggersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked triggers (unresolved by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		triggers, err := a.store.ListTriggers(context.Background(), !triggersAll)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(triggers, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var triggersRouteCmd = &cobra.Command{
	Use:   "route <trigger-id>",
	Short: "Route a trigger to its escalation path",
	Long: "Routes a blocked trigger by the agent's maturity at block time:\n" +
		"supervised-and-above opens a supervision session, below that the\n" +
		"agent must submit a proposal and train.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := context.Background()
		routing, err := a.escalate.Route(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("routed %s to %s\n", args[0], routing)

		if routing == model.RouteSupervision {
			sess, err := a.escalate.OpenSupervision(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("supervision session %s opened\n", sess.ID)
		}
		return nil
	},
}

var triggersResolveCmd = &cobra.Command{
	Use:   "resolve <trigger-id>",
	Short: "Manually resolve a trigger with an outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.ResolveTrigger(context.Background(), args[0], resolveOutcome, time.Now()); err != nil {
			return err
		}
		fmt.Printf("resolved %s\n", args[0])
		return nil
	},
}
