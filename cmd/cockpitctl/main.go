// cockpitctl is a command-line client for the cockpit API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"cockpit/internal/client"
	"cockpit/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("cockpitctl failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	url        string
	apiKey     string
	apiKeyFile string
	timeout    time.Duration
	taskID     string

	client *client.Client
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "cockpitctl",
		Short:         "Start, inspect and kill the cockpit job",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			key := opts.apiKey
			if key == "" && opts.apiKeyFile != "" {
				key = config.GetSecretFile(opts.apiKeyFile)
			}
			opts.client = client.New(opts.url, client.WithAPIKey(key))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.url, "url", config.GetEnv("COCKPIT_URL", "http://localhost:8080"), "API base URL (env COCKPIT_URL)")
	flags.StringVar(&opts.apiKey, "api-key", config.GetEnv("COCKPIT_API_KEY", ""), "bearer token (env COCKPIT_API_KEY)")
	flags.StringVar(&opts.apiKeyFile, "api-key-file", "", "file holding the bearer token")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		infoCmd(opts, "start", "Admit a new job unless one is running", false, func(ctx context.Context) (any, error) {
			return opts.client.Start(ctx)
		}),
		infoCmd(opts, "progress", "Show the status of a job", true, func(ctx context.Context) (any, error) {
			return opts.client.Progress(ctx, opts.taskID)
		}),
		infoCmd(opts, "kill", "Force-terminate a job", true, func(ctx context.Context) (any, error) {
			return opts.client.Kill(ctx, opts.taskID)
		}),
		textCmd(opts, "output", "Print the result of a finished job", func(ctx context.Context) (string, error) {
			return opts.client.Output(ctx, opts.taskID)
		}),
		textCmd(opts, "error", "Print the failure detail of a finished job", func(ctx context.Context) (string, error) {
			return opts.client.Error(ctx, opts.taskID)
		}),
		&cobra.Command{
			Use:   "ping",
			Short: "Check the API is alive",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
				defer cancel()
				msg, err := opts.client.Ping(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		},
		versionCmd(),
	)
	return root
}

// infoCmd prints a job's {id, status, date} as indented JSON.
func infoCmd(opts *options, use, short string, takesID bool, call func(context.Context) (any, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			info, err := call(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
	if takesID {
		addTaskIDFlag(cmd, opts)
	}
	return cmd
}

// textCmd prints a plain-text response verbatim.
func textCmd(opts *options, use, short string, call func(context.Context) (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			text, err := call(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	addTaskIDFlag(cmd, opts)
	return cmd
}

func addTaskIDFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.taskID, "task-id", "", "job id (default: the current job)")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(out, "cockpitctl: version info not available")
				return
			}
			fmt.Fprintf(out, "cockpitctl: %s\n", info.Main.Version)
			fmt.Fprintf(out, "go:         %s\n", info.GoVersion)
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					fmt.Fprintf(out, "commit:     %s\n", s.Value)
				}
			}
		},
	}
}
