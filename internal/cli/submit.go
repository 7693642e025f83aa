package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/caseflow/caseflow/api/v1alpha1"
)

type SubmitOptions struct {
	GlobalOptions

	Watch bool
}

func DefaultSubmitOptions() *SubmitOptions {
	return &SubmitOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdSubmit() *cobra.Command {
	o := DefaultSubmitOptions()
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a case record for document generation. Use - to read from stdin.",
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

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVarP(&o.Watch, "watch", "w", false, "Stream job progress after submitting")
}

func (o *SubmitOptions) Run(ctx context.Context, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading case record: %w", err)
	}

	// reject obviously broken input before it hits the wire
	var record api.CaseRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("parsing case record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.ServerUrl+"/api/v1/cases", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submitting case: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusCreated {
		var apiErr api.Error
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("submission rejected: %s", apiErr.Message)
		}
		return fmt.Errorf("submission rejected: status %d", resp.StatusCode)
	}

	var reply api.SubmitReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("parsing reply: %w", err)
	}

	fmt.Println(reply.JobID)

	if o.Watch {
		return watchJob(ctx, o.ServerUrl, reply.JobID)
	}
	return nil
}
