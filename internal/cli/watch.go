package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caseflow/caseflow/internal/client"
	"github.com/caseflow/caseflow/internal/statuscache"
)

type WatchOptions struct {
	GlobalOptions
}

func DefaultWatchOptions() *WatchOptions {
	return &WatchOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdWatch() *cobra.Command {
	o := DefaultWatchOptions()
	cmd := &cobra.Command{
		Use:   "watch JOB_ID",
		Short: "Stream a generation job's progress until it finishes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *WatchOptions) Run(ctx context.Context, args []string) error {
	return watchJob(ctx, o.ServerUrl, args[0])
}

func watchJob(ctx context.Context, serverUrl, jobID string) error {
	watcher := client.NewWatcher(client.Config{ServiceUrl: serverUrl})

	final, err := watcher.Watch(ctx, jobID, func(status statuscache.JobStatus) {
		if status.State.IsTerminal() {
			return
		}
		line := fmt.Sprintf("%-10s %3d%%", status.State, status.ProgressPercent)
		if status.Phase != "" {
			line += "  " + status.Phase
		}
		if status.Message != "" {
			line += "  " + status.Message
		}
		fmt.Println(line)
	})
	if err != nil {
		return fmt.Errorf("watching job: %w", err)
	}

	switch final.State {
	case statuscache.StateSucceeded:
		fmt.Printf("succeeded  100%%\n")
		if final.Result != nil {
			fmt.Println(string(final.Result))
		}
		return nil
	default:
		if final.ErrorDetail != nil {
			return fmt.Errorf("job failed (%s): %s", final.ErrorDetail.Kind, final.ErrorDetail.Message)
		}
		return fmt.Errorf("job failed: %s", final.Message)
	}
}
