package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appraisement/appraisal-engine/internal/engine"
	"github.com/appraisement/appraisal-engine/internal/model"
)

var (
	appraiseAsOf  string
	appraiseForce bool
	appraiseWait  bool
)

var appraiseCmd = &cobra.Command{
	Use:   "appraise <address>",
	Short: "Start an appraisal for an address",
	Long:  "Submits an address to the pipeline. With --wait, polls until the run reaches a terminal state and prints the appraisal.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		addr := strings.Join(args, " ")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req, started, err := env.Engine.Start(ctx, engine.StartInput{
			Address:  addr,
			AsOfDate: appraiseAsOf,
			Force:    appraiseForce,
		})
		if err != nil {
			return err
		}

		if started {
			fmt.Printf("Started request %s\n", req.ID)
		} else {
			fmt.Printf("Request %s already in flight for this address (status: %s)\n", req.ID, req.Status)
		}

		if !appraiseWait {
			return nil
		}

		final, err := waitForRequest(ctx, env.Engine, req.ID)
		if err != nil {
			return err
		}
		if final.Status == model.StatusFailed {
			msg := "unknown error"
			if final.ErrorMessage != nil {
				msg = *final.ErrorMessage
			}
			return eris.Errorf("appraisal failed: %s", msg)
		}

		result, err := env.Engine.GetAppraisal(ctx, req.ID)
		if err != nil {
			return err
		}
		if result == nil {
			return eris.New("request completed but no appraisal was stored")
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal appraisal")
		}
		fmt.Println(string(out))
		return nil
	},
}

// waitForRequest polls until the request is done or failed, backing off
// 2s -> 4s -> 8s, capped at 15s.
func waitForRequest(ctx context.Context, e *engine.Engine, requestID string) (*model.AppraisalRequest, error) {
	delay := 2 * time.Second
	const maxDelay = 15 * time.Second

	for {
		req, err := e.GetStatus(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if req == nil {
			return nil, eris.Errorf("request %s disappeared", requestID)
		}
		if req.Status.Terminal() {
			return req, nil
		}
		zap.L().Info("waiting for appraisal",
			zap.String("request_id", requestID),
			zap.String("status", string(req.Status)))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func init() {
	appraiseCmd.Flags().StringVar(&appraiseAsOf, "as-of", "", "effective date for the value opinion (YYYY-MM-DD, default today)")
	appraiseCmd.Flags().BoolVar(&appraiseForce, "force", false, "bypass cached step results")
	appraiseCmd.Flags().BoolVar(&appraiseWait, "wait", false, "block until the run finishes and print the appraisal")
	rootCmd.AddCommand(appraiseCmd)
}
