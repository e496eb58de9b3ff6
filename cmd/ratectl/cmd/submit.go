package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rateshop-backend/internal/jobs"
	"rateshop-backend/internal/shipping"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a bulk rate-shopping job",
	Long: `Submit shipments from a JSON file. The file holds either a full request
({"shipments": [...], "carrierAccountIds": [...]}) or a bare array of shipments.

Example:
  ratectl submit --file shipments.json --accounts acct-ups,acct-fedex
  ratectl submit --file request.json --wait --interval 2s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		file, _ := flags.GetString("file")
		accounts, _ := flags.GetStringSlice("accounts")
		wait, _ := flags.GetBool("wait")
		interval, _ := flags.GetDuration("interval")
		timeout, _ := flags.GetDuration("timeout")

		if file == "" {
			return fmt.Errorf("--file is required")
		}
		req, err := readSubmitRequest(file)
		if err != nil {
			return err
		}
		if len(accounts) > 0 {
			req.CarrierAccountIDs = accounts
		}

		client, err := newClientFromConfig()
		if err != nil {
			return err
		}
		accepted, err := client.SubmitJob(req)
		if err != nil {
			return err
		}
		cmd.Printf("Job submitted: %s (%s)\n", accepted.JobID, accepted.Status)
		if !wait {
			return nil
		}

		view, err := waitForJob(client, accepted.JobID, interval, timeout, func(v *jobs.StatusView) {
			cmd.Printf("  %s %d/%d\n", v.Status, v.ProcessedCount, v.TotalCount)
		})
		if err != nil {
			return err
		}
		printStatus(cmd, view)
		return nil
	},
}

func readSubmitRequest(path string) (jobs.SubmitRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return jobs.SubmitRequest{}, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var shipments []shipping.ShipmentInput
		if err := json.Unmarshal(raw, &shipments); err != nil {
			return jobs.SubmitRequest{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return jobs.SubmitRequest{Shipments: shipments}, nil
	}
	var req jobs.SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return jobs.SubmitRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return req, nil
}

// waitForJob polls until the job reaches a terminal status or timeout passes.
func waitForJob(client *RateClient, jobID string, interval, timeout time.Duration, progress func(*jobs.StatusView)) (*jobs.StatusView, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		view, err := client.GetJob(jobID)
		if err != nil {
			return nil, err
		}
		if view.Status.Terminal() {
			return view, nil
		}
		if progress != nil {
			progress(view)
		}
		if timeout > 0 && time.Now().After(deadline) {
			return view, fmt.Errorf("job %s still %s after %s", jobID, view.Status, timeout)
		}
		time.Sleep(interval)
	}
}

func init() {
	flags := submitCmd.Flags()
	flags.StringP("file", "f", "", "JSON file with shipments (required)")
	flags.StringSliceP("accounts", "a", nil, "carrier account ids, overrides the file")
	flags.BoolP("wait", "w", false, "poll until the job finishes")
	flags.Duration("interval", 2*time.Second, "poll interval with --wait")
	flags.Duration("timeout", 30*time.Minute, "give up waiting after this long (0 waits forever)")

	rootCmd.AddCommand(submitCmd)
}
