package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Manifest is the deployment configuration document read by the control
// plane at registration time. It declares where source code comes from,
// how the execution environment is prepared, and which deployments of the
// flow entrypoint are registered against which work pools.
type Manifest struct {
	Name            string
	PlatformVersion string
	Build           []PullStep
	Push            []PullStep
	Pull            []PullStep
	Deployments     []Deployment
}

// PullStep is one declared preparation action. Exactly one of the embedded
// actions must be set.
type PullStep struct {
	GitClone   *GitCloneStep
	PipInstall *PipInstallStep
}

// GitCloneStep clones a repository pinned to a branch. A non-empty ID makes
// the step's output directory addressable from later steps as
// "{{ <id>.directory }}".
type GitCloneStep struct {
	ID                string
	Repository        string
	Branch            string
	IncludeSubmodules bool
}

// PipInstallStep installs dependencies from a requirements listing,
// optionally inside the directory produced by an earlier clone step.
type PipInstallStep struct {
	RequirementsFile string
	Directory        string
	StreamOutput     bool
}

const (
	StepKindGitClone   = "git_clone"
	StepKindPipInstall = "pip_install"
)

// Kind reports which action the step declares, or "" when the step is empty.
func (s PullStep) Kind() string {
	switch {
	case s.GitClone != nil && s.PipInstall == nil:
		return StepKindGitClone
	case s.PipInstall != nil && s.GitClone == nil:
		return StepKindPipInstall
	default:
		return ""
	}
}

// ValidateShape checks the exactly-one-action invariant of a pull step.
func (s PullStep) ValidateShape() error {
	if s.GitClone != nil && s.PipInstall != nil {
		return errors.New("pull step declares more than one action")
	}
	if s.GitClone == nil && s.PipInstall == nil {
		return errors.New("pull step declares no action")
	}
	return nil
}

// Entrypoint identifies the flow function inside a source file, written
// "<file>:<function>" in the manifest.
type Entrypoint struct {
	File     string
	Function string
}

func ParseEntrypoint(raw string) (Entrypoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Entrypoint{}, errors.New("entrypoint is required")
	}
	file, function, ok := strings.Cut(raw, ":")
	if !ok {
		return Entrypoint{}, fmt.Errorf("entrypoint %q must be <file>:<function>", raw)
	}
	file = strings.TrimSpace(file)
	function = strings.TrimSpace(function)
	if file == "" || function == "" {
		return Entrypoint{}, fmt.Errorf("entrypoint %q must have non-empty file and function", raw)
	}
	return Entrypoint{File: file, Function: function}, nil
}

func (e Entrypoint) String() string {
	return e.File + ":" + e.Function
}

// Schedule is a cron schedule for a deployment. A zero Schedule means the
// deployment has no schedule and runs only on manual trigger.
type Schedule struct {
	Cron     string
	Timezone string
}

func (s Schedule) Enabled() bool {
	return strings.TrimSpace(s.Cron) != ""
}

// WorkPool routes runs of a deployment to a named execution pool and queue,
// with environment variable overrides injected at worker launch.
type WorkPool struct {
	Name      string
	WorkQueue string
	Env       map[string]string
}

// ExtraLoggersEnv is the logging-configuration variable the worker injects:
// a comma-separated list of extra logger names to activate.
const ExtraLoggersEnv = "HUBLOADER_EXTRA_LOGGERS"

// Deployment is a named, parameterized, schedulable registration of the flow.
type Deployment struct {
	Name        string
	Version     string
	Tags        []string
	Description string
	Schedule    Schedule
	FlowName    string
	Entrypoint  Entrypoint
	Parameters  ParameterSet
	WorkPool    WorkPool
	Pull        []PullStep
}

// EffectivePull returns the pull sequence used to prepare this deployment:
// the per-deployment sequence when declared, the manifest-level sequence
// otherwise.
func (d Deployment) EffectivePull(manifestPull []PullStep) []PullStep {
	if len(d.Pull) > 0 {
		return d.Pull
	}
	return manifestPull
}

// HasTag reports whether the deployment carries the given tag.
func (d Deployment) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
