package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/appraisement/appraisal-engine/internal/model"
	"github.com/appraisement/appraisal-engine/internal/store"
)

var (
	requestsStatus string
	requestsLimit  int
	requestsOffset int
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List appraisal requests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Engine.ListRequests(ctx, store.RequestFilter{
			Status: model.RequestStatus(requestsStatus),
			Limit:  requestsLimit,
			Offset: requestsOffset,
		})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No requests found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tVALUE\tADDRESS\tCREATED")
		for _, r := range list {
			value := "-"
			if r.FinalValue != nil {
				value = fmt.Sprintf("%.0f", *r.FinalValue)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Status, value, r.Address, r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	requestsCmd.Flags().StringVar(&requestsStatus, "status", "", "filter by status")
	requestsCmd.Flags().IntVar(&requestsLimit, "limit", 50, "maximum rows to return")
	requestsCmd.Flags().IntVar(&requestsOffset, "offset", 0, "rows to skip")
	rootCmd.AddCommand(requestsCmd)
}
