package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results [job_id]",
	Short: "Print the priced and orphaned shipments of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newClientFromConfig()
		if err != nil {
			return err
		}
		set, err := client.GetResults(args[0])
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SHIPMENT\tACCOUNT\tSERVICE\tAMOUNT\tPAID\tSAVINGS\tSOURCE")
		for _, r := range set.Results {
			if r.Best == nil || r.Savings == nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
				r.ShipmentID, r.Best.CarrierAccountID, r.Best.ServiceCode,
				r.Best.Amount, r.CurrentRate, *r.Savings, r.Best.Source)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if len(set.Orphans) > 0 {
			cmd.Printf("\nOrphaned (%d):\n", len(set.Orphans))
			for _, r := range set.Orphans {
				cmd.Printf("  %s: %s\n", r.ShipmentID, r.OrphanReason)
			}
		}
		return nil
	},
}

func init() {
	resultsCmd.Flags().Bool("json", false, "print raw JSON")
	rootCmd.AddCommand(resultsCmd)
}
