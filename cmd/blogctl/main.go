// Command blogctl submits keywords to the blog generation API and waits for
// the generated article.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/client"
	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/spf13/cobra"
)

type options struct {
	server   string
	interval time.Duration
	maxWait  time.Duration
	timeout  time.Duration
	out      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "blogctl",
		Short:         "Generate blog posts from web search results",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	defaultServer := os.Getenv("BLOG_API_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "blog generation API base URL")

	root.AddCommand(newGenerateCmd(opts), newStatusCmd(opts))
	return root
}

func newGenerateCmd(opts *options) *cobra.Command {
	defaults := client.DefaultPollOptions()

	cmd := &cobra.Command{
		Use:   "generate <keyword>",
		Short: "Generate a blog post for a keyword and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd, opts, args[0])
		},
	}
	cmd.Flags().DurationVar(&opts.interval, "interval", defaults.Interval, "initial delay between status polls")
	cmd.Flags().DurationVar(&opts.maxWait, "max-interval", defaults.MaxInterval, "maximum delay between status polls")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaults.Timeout, "give up waiting after this long")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the article to this file instead of stdout")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Print the current status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.New(opts.server, nil).Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func runGenerate(ctx context.Context, cmd *cobra.Command, opts *options, keyword string) error {
	api := client.New(opts.server, nil)
	stderr := cmd.ErrOrStderr()

	resp, err := api.Submit(ctx, keyword)
	if err != nil {
		return fmt.Errorf("failed to start blog generation: %w", err)
	}
	fmt.Fprintf(stderr, "%s (job %s)\n", resp.Message, resp.JobID)

	status, err := api.Wait(ctx, resp.JobID, client.PollOptions{
		Interval:    opts.interval,
		MaxInterval: opts.maxWait,
		Timeout:     opts.timeout,
		OnProgress: func(s types.JobStatus) {
			fmt.Fprintf(stderr, "[%s] %s\n", s.Status, s.Progress)
		},
	})
	if err != nil {
		return err
	}
	if status.Status == types.StatusFailed {
		return errors.New(status.Error)
	}

	if opts.out == "" {
		fmt.Fprintln(cmd.OutOrStdout(), status.Result)
		return nil
	}
	if dir := filepath.Dir(opts.out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(opts.out, []byte(status.Result), 0o644); err != nil {
		return fmt.Errorf("failed to write article: %w", err)
	}
	fmt.Fprintf(stderr, "Article written to %s\n", opts.out)
	return nil
}

func printStatus(w io.Writer, status types.JobStatus) {
	fmt.Fprintf(w, "Job:      %s\n", status.JobID)
	fmt.Fprintf(w, "Keyword:  %s\n", status.Keyword)
	fmt.Fprintf(w, "Status:   %s\n", status.Status)
	fmt.Fprintf(w, "Progress: %s\n", status.Progress)
	if status.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", status.Error)
	}
	if status.Result != "" {
		fmt.Fprintf(w, "\n%s\n", status.Result)
	}
}
