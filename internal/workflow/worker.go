package workflow

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// TaskQueue is the Temporal task queue this control plane's workflows run on.
const TaskQueue = "cortex-control-plane"

// StartWorker connects to Temporal and starts the control plane's workflow
// worker, registering the heartbeat emission, watchdog, and remediation
// workflows alongside their activities. Blocks until interrupted.
func StartWorker(hostPort string, acts *Activities) error {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	w.RegisterWorkflow(HeartbeatLoopWorkflow)
	w.RegisterWorkflow(WatchdogWorkflow)
	w.RegisterWorkflow(RemediationWorkflow)

	w.RegisterActivity(acts.SampleWorkerActivity)
	w.RegisterActivity(acts.EmitHeartbeatActivity)
	w.RegisterActivity(acts.LoadLastHeartbeatActivity)
	w.RegisterActivity(acts.EvaluatePhaseActivity)
	w.RegisterActivity(acts.RecordFailureEventActivity)
	w.RegisterActivity(acts.MoveToFailedActivity)
	w.RegisterActivity(acts.ExecutePlaybookActivity)

	log.Println("Temporal worker started on", TaskQueue)
	return w.Run(worker.InterruptCh())
}
