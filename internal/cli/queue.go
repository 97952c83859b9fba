package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/outbox"
	"github.com/avoronkov/warden/internal/queue"
	"github.com/avoronkov/warden/internal/shell"
)

var (
	qAddAgent    string
	qAddUser     string
	qAddTrigger  string
	qAddContext  string
	qAddPriority int
	qAddAttempts int
	qAddTTL      int

	qListStatus string

	qWorkerConcurrency int
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd, queueListCmd, queueCancelCmd, queueWorkerCmd)

	queueAddCmd.Flags().StringVar(&qAddAgent, "agent", "", "Agent ID (required)")
	queueAddCmd.Flags().StringVar(&qAddUser, "user", "", "Requesting user ID")
	queueAddCmd.Flags().StringVar(&qAddTrigger, "trigger", "", "Action type to execute under supervision (required)")
	queueAddCmd.Flags().StringVar(&qAddContext, "context", "", "JSON execution context")
	queueAddCmd.Flags().IntVar(&qAddPriority, "priority", 0, "Higher runs first")
	queueAddCmd.Flags().IntVar(&qAddAttempts, "max-attempts", 0, "Retry budget (0 = default)")
	queueAddCmd.Flags().IntVar(&qAddTTL, "ttl", 0, "Entry lifetime in seconds (0 = default)")
	queueAddCmd.MarkFlagRequired("agent")
	queueAddCmd.MarkFlagRequired("trigger")

	queueListCmd.Flags().StringVar(&qListStatus, "status", "", "Filter by status (pending/executing/completed/failed/cancelled)")

	queueWorkerCmd.Flags().IntVar(&qWorkerConcurrency, "concurrency", 0, "Worker pool size (0 = config default)")
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the supervised execution queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Enqueue work for supervised execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		e, err := a.queue.Enqueue(context.Background(), queue.Request{
			AgentID:          qAddAgent,
			UserID:           qAddUser,
			TriggerType:      qAddTrigger,
			ExecutionContext: qAddContext,
			Priority:         qAddPriority,
			MaxAttempts:      qAddAttempts,
			TTL:              time.Duration(qAddTTL) * time.Second,
		})
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (expires %s)\n", e.ID, e.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		entries, err := a.queue.List(context.Background(), model.QueueStatus(qListStatus))
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <entry-id>",
	Short: "Cancel a pending or executing entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.queue.Cancel(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("cancelled %s\n", args[0])
		return nil
	},
}

var queueWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue worker pool",
	Long: "Claims pending entries and executes them: shell_execute contexts go\n" +
		"through the execution gateway, every entry is re-checked against\n" +
		"governance right before it runs. Blocks until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		concurrency := qWorkerConcurrency
		if concurrency <= 0 {
			concurrency = a.cfg.WorkerConcurrency
		}
		w := queue.NewWorker(a.queue, a.gov, &supervisedExecutor{shell: a.shell}, concurrency)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		// Drain state-change events alongside the worker pool.
		drainer := outbox.NewDrainer(a.store, outbox.LogNotifier(), a.cfg.OutboxInterval())
		go drainer.Run(ctx)

		fmt.Fprintf(os.Stderr, "warden queue worker running (concurrency %d)\n", concurrency)
		return w.Run(ctx)
	},
}

// supervisedExecutor performs claimed work. Shell contexts run through
// the execution gateway; other trigger types are completed with a
// marker ID once the supervisor has carried them out of band.
type supervisedExecutor struct {
	shell *shell.Service
}

type shellContext struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
}

func (x *supervisedExecutor) ExecuteEntry(ctx context.Context, e *model.QueueEntry) (string, error) {
	if e.TriggerType != "shell_execute" {
		return "supervised:" + e.ID, nil
	}

	var sc shellContext
	if err := json.Unmarshal([]byte(e.ExecutionContext), &sc); err != nil {
		return "", fmt.Errorf("parse execution context: %w", err)
	}
	sess, err := x.shell.Execute(ctx, shell.Request{
		AgentID:    e.AgentID,
		Command:    sc.Command,
		WorkingDir: sc.WorkingDir,
	})
	if err != nil {
		return "", err
	}
	if sess.ExitCode != 0 {
		return "", fmt.Errorf("command exited %d", sess.ExitCode)
	}
	return sess.ID, nil
}
