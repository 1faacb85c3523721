package domain

import "time"

// RunStatus is the lifecycle state of a flow run.
type RunStatus string

const (
	RunScheduled RunStatus = "scheduled"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// FlowRun is one instantiation of a deployment, claimed and executed by a
// worker from the deployment's work queue.
type FlowRun struct {
	ID           string
	DeploymentID string
	WorkPool     string
	WorkQueue    string
	Parameters   ParameterSet
	Status       RunStatus
	ScheduledAt  time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	LogLocation  string
	Failure      string
	CreatedAt    time.Time
	CreatedBy    string
}
