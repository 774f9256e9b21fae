package workflow

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/appraisement/appraisal-engine/internal/config"
)

// NewWorker creates a Temporal worker with the appraisal workflow and all
// activities registered. Lookup fan-out is bounded by the configured activity
// concurrency.
func NewWorker(c client.Client, cfg *config.Config, a *Activities) worker.Worker {
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.Lookup.MaxConcurrent,
	})
	w.RegisterWorkflowWithOptions(AppraisalWorkflow, workflow.RegisterOptions{Name: TypeName})
	w.RegisterActivity(a)
	return w
}
