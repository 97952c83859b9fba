package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avoronkov/warden/internal/shell"
)

var (
	execAgent      string
	execDir        string
	execComplexity int
	execTimeout    int
)

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVar(&execAgent, "agent", "", "Agent ID (required)")
	execCmd.Flags().StringVar(&execDir, "dir", "", "Working directory")
	execCmd.Flags().IntVar(&execComplexity, "complexity", 1, "Task complexity 1-5")
	execCmd.Flags().IntVar(&execTimeout, "timeout", 0, "Timeout in seconds (0 = default)")
	execCmd.MarkFlagRequired("agent")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- command [args...]",
	Short: "Execute a command through warden governance",
	Long: "Runs a command on the host if the agent passes all three gates:\n" +
		"maturity, command rules, and directory permissions. The command is\n" +
		"tokenized and spawned directly; there is no shell in between.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.shell.Execute(context.Background(), shell.Request{
		AgentID:    execAgent,
		Command:    strings.Join(args, " "),
		WorkingDir: execDir,
		Complexity: execComplexity,
		Timeout:    time.Duration(execTimeout) * time.Second,
	})
	if err != nil {
		var perr *shell.PermissionError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "BLOCKED (%s): %s\n", perr.Stage, perr.Reason)
			os.Exit(1)
		}
		return err
	}

	fmt.Print(sess.Stdout)
	fmt.Fprint(os.Stderr, sess.Stderr)
	if sess.TimedOut {
		fmt.Fprintln(os.Stderr, "warden: command killed on timeout")
	}
	os.Exit(sess.ExitCode)
	return nil
}
