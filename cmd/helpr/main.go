package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	stopFlags := &StopFlags{}
	historyFlags := &HistoryFlags{}
	serveFlags := &ServeFlags{}

	helprCommand := command{flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStatusCommand(&helprCommand),
		createStartCommand(&helprCommand),
		createStopCommand(&helprCommand, stopFlags),
		createTemplatesCommand(&helprCommand),
		createUseCommand(&helprCommand),
		createResolveCommand(&helprCommand),
		createHistoryCommand(&helprCommand, historyFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "helpr",
		Short: "Launcher and supervisor for a template-driven helper process",
		Long: `helpr runs one helper executable with arguments taken from a selected
template file, and stops it on request or at shutdown.

Examples:
  helpr serve helpr.toml            # run the service
  helpr templates                   # list templates of the running service
  helpr use discord                 # select the template for the next start
  helpr start
  helpr stop
  helpr resolve general --config helpr.toml   # print the argument list locally`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "service URL (default from [server] in config)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 15*time.Second, "request timeout")
	return root
}

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the helpr service",
		Long: `Run the service: apply autostart, serve the HTTP command surface and
stop the helper on SIGINT/SIGTERM.

Examples:
  helpr serve                       # uses --config or defaults
  helpr serve helpr.toml --listen 127.0.0.1:9000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *serveFlags
			f.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), f, cmd.OutOrStdout(), nil)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "override [server].listen")
	return cmd
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the helper is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Status(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createStartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the helper with the active template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Start(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createStopCommand(c *command, flags *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the helper and wait for it to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Stop(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "server-side wait for teardown (default 10s)")
	return cmd
}

func createTemplatesCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List templates; the active one is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Templates(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createUseCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "use <template>",
		Short: "Select the template for the next start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Use(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func createResolveCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <template>",
		Short: "Print the argument list a template resolves to, one per line",
		Long: `Resolve reads the template locally using --config; no service is needed.

Examples:
  helpr resolve general --config helpr.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Resolve(cmd.OutOrStdout(), args[0])
		},
	}
}

func createHistoryCommand(c *command, flags *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent helper start/stop events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.History(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "number of events")
	return cmd
}
