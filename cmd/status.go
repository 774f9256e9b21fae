package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusShowAppraisal bool

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Show the state of an appraisal request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req, err := env.Engine.GetStatus(ctx, args[0])
		if err != nil {
			return err
		}
		if req == nil {
			return eris.Errorf("request %s not found", args[0])
		}

		out, err := json.MarshalIndent(req, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		fmt.Println(string(out))

		if !statusShowAppraisal {
			return nil
		}

		result, err := env.Engine.GetAppraisal(ctx, req.ID)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("No appraisal stored yet.")
			return nil
		}
		res, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal appraisal")
		}
		fmt.Println(string(res))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowAppraisal, "appraisal", false, "also print the latest appraisal result")
	rootCmd.AddCommand(statusCmd)
}
