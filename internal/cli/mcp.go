package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avoronkov/warden/internal/cmdcheck"
	"github.com/avoronkov/warden/internal/config"
	"github.com/avoronkov/warden/internal/dirperm"
	wardenmcp "github.com/avoronkov/warden/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs warden as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes governed tools: check, exec, dir_check, enqueue, pending,\n" +
		"resolve. Rule files are hot-reloaded on change.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	srv := wardenmcp.New(wardenmcp.Deps{
		Registry: a.registry,
		Gov:      a.gov,
		Shell:    a.shell,
		Dirs:     a.dirs,
		Queue:    a.queue,
		Escalate: a.escalate,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reloader, err := config.NewReloader(
		[]string{a.cfg.CommandRulesPath, a.cfg.DirectoryTablePath},
		func() { reloadRules(a, srv) },
	)
	if err != nil {
		return err
	}
	go func() {
		if err := reloader.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "reloader: %v\n", err)
		}
	}()

	fmt.Fprintln(os.Stderr, "warden MCP server running on stdio")
	err = srv.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// reloadRules re-reads the rule files and swaps them into the live
// services. A file that fails to parse leaves the old rules in place.
func reloadRules(a *app, srv *wardenmcp.Server) {
	if rules, err := cmdcheck.Load(a.cfg.CommandRulesPath); err != nil {
		fmt.Fprintf(os.Stderr, "hot-reload: command rules: %v\n", err)
	} else {
		srv.ReloadRules(rules)
		fmt.Fprintln(os.Stderr, "hot-reload: command rules reloaded")
	}

	if table, err := dirperm.LoadTable(a.cfg.DirectoryTablePath); err != nil {
		fmt.Fprintf(os.Stderr, "hot-reload: directory table: %v\n", err)
	} else if err := a.dirs.SetTable(table); err != nil {
		fmt.Fprintf(os.Stderr, "hot-reload: directory table: %v\n", err)
	} else {
		fmt.Fprintln(os.Stderr, "hot-reload: directory table reloaded")
	}
}
