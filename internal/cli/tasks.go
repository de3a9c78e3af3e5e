package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/transport"
	"github.com/spec-kit/collab-client/pkg/collab"
)

// NewAssignCommand creates the assign command.
func NewAssignCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <user-id>",
		Short: "Assign a user to a task",
		Long:  "Assign a user to a task. Assigning the same user twice is a no-op.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, c *collab.Client) error {
				task, err := c.Tasks.Assign(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(rootOpts.output(cmd), task)
			})
		},
	}
}

// NewUnassignCommand creates the unassign command.
func NewUnassignCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <task-id> <user-id>",
		Short: "Remove a user from a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, c *collab.Client) error {
				task, err := c.Tasks.Unassign(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(rootOpts.output(cmd), task)
			})
		},
	}
}

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Project string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print task updates for a project until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *collab.Client) error {
				return watchProject(ctx, cmd, c, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

// watchProject blocks until interrupted or the subscription fails.
func watchProject(ctx context.Context, cmd *cobra.Command, c *collab.Client, opts *WatchOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	out := opts.output(cmd)
	failed := make(chan error, 1)
	err := c.Watch(ctx, graphql.TaskUpdated(opts.Project), func(ev transport.Event) {
		if ev.Err != nil {
			select {
			case failed <- ev.Err:
			default:
			}
			return
		}
		var task domain.Task
		if found, err := ev.Response.Decode(graphql.FieldTaskUpdated, &task); err != nil || !found {
			return
		}
		_ = printTask(out, &task)
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return err
	}
}

func printTask(out *OutputFormatter, task *domain.Task) error {
	names := make([]string, 0, len(task.Assignees))
	for _, a := range task.Assignees {
		if a.User != nil {
			names = append(names, a.User.Name)
		}
	}
	assignees := "none"
	if len(names) > 0 {
		assignees = strings.Join(names, ", ")
	}
	return out.Print(task, fmt.Sprintf("task %s %q assignees: %s", task.ID, task.Title, assignees))
}
