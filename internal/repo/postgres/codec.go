package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

// Deployment specs and run parameters are persisted as JSON with stable
// field names, decoupled from the domain structs.

type deploymentSpecPayload struct {
	Tags        []string            `json:"tags"`
	Description string              `json:"description"`
	Schedule    schedulePayload     `json:"schedule"`
	FlowName    string              `json:"flowName"`
	Entrypoint  string              `json:"entrypoint"`
	Parameters  parametersPayload   `json:"parameters"`
	WorkPool    workPoolPayload     `json:"workPool"`
	Pull        []pullStepPayload   `json:"pull,omitempty"`
}

type schedulePayload struct {
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type parametersPayload struct {
	SecretName       string `json:"secretName"`
	MetadataFolder   string `json:"metadataFolder"`
	Runner           string `json:"runner"`
	ModelTag         string `json:"modelTag"`
	CheatMode        bool   `json:"cheatMode"`
	DryRun           bool   `json:"dryRun"`
	WipeDB           bool   `json:"wipeDb"`
	Mode             string `json:"mode"`
	SplitTransaction bool   `json:"splitTransaction"`
}

type workPoolPayload struct {
	Name      string            `json:"name"`
	WorkQueue string            `json:"workQueue"`
	Env       map[string]string `json:"env,omitempty"`
}

type pullStepPayload struct {
	GitClone   *gitClonePayload   `json:"gitClone,omitempty"`
	PipInstall *pipInstallPayload `json:"pipInstall,omitempty"`
}

type gitClonePayload struct {
	ID                string `json:"id,omitempty"`
	Repository        string `json:"repository"`
	Branch            string `json:"branch"`
	IncludeSubmodules bool   `json:"includeSubmodules,omitempty"`
}

type pipInstallPayload struct {
	RequirementsFile string `json:"requirementsFile"`
	Directory        string `json:"directory,omitempty"`
	StreamOutput     bool   `json:"streamOutput"`
}

func encodeDeploymentSpec(dep domain.Deployment) ([]byte, error) {
	payload := deploymentSpecPayload{
		Tags:        dep.Tags,
		Description: dep.Description,
		Schedule: schedulePayload{
			Cron:     dep.Schedule.Cron,
			Timezone: dep.Schedule.Timezone,
		},
		FlowName:   dep.FlowName,
		Entrypoint: dep.Entrypoint.String(),
		Parameters: parametersFromDomain(dep.Parameters),
		WorkPool: workPoolPayload{
			Name:      dep.WorkPool.Name,
			WorkQueue: dep.WorkPool.WorkQueue,
			Env:       dep.WorkPool.Env,
		},
		Pull: pullStepsFromDomain(dep.Pull),
	}
	return json.Marshal(payload)
}

func decodeDeploymentSpec(name, version string, raw []byte) (domain.Deployment, error) {
	var payload deploymentSpecPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Deployment{}, fmt.Errorf("decode deployment spec: %w", err)
	}
	entrypoint, err := domain.ParseEntrypoint(payload.Entrypoint)
	if err != nil {
		return domain.Deployment{}, fmt.Errorf("decode deployment spec: %w", err)
	}
	return domain.Deployment{
		Name:        name,
		Version:     version,
		Tags:        payload.Tags,
		Description: payload.Description,
		Schedule: domain.Schedule{
			Cron:     payload.Schedule.Cron,
			Timezone: payload.Schedule.Timezone,
		},
		FlowName:   payload.FlowName,
		Entrypoint: entrypoint,
		Parameters: parametersToDomain(payload.Parameters),
		WorkPool: domain.WorkPool{
			Name:      payload.WorkPool.Name,
			WorkQueue: payload.WorkPool.WorkQueue,
			Env:       payload.WorkPool.Env,
		},
		Pull: pullStepsToDomain(payload.Pull),
	}, nil
}

func encodeParameters(p domain.ParameterSet) ([]byte, error) {
	return json.Marshal(parametersFromDomain(p))
}

func decodeParameters(raw []byte) (domain.ParameterSet, error) {
	var payload parametersPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ParameterSet{}, fmt.Errorf("decode parameters: %w", err)
	}
	return parametersToDomain(payload), nil
}

func parametersFromDomain(p domain.ParameterSet) parametersPayload {
	return parametersPayload{
		SecretName:       p.SecretName,
		MetadataFolder:   p.MetadataFolder,
		Runner:           p.Runner,
		ModelTag:         p.ModelTag,
		CheatMode:        p.CheatMode,
		DryRun:           p.DryRun,
		WipeDB:           p.WipeDB,
		Mode:             string(p.Mode),
		SplitTransaction: p.SplitTransaction,
	}
}

func parametersToDomain(payload parametersPayload) domain.ParameterSet {
	return domain.ParameterSet{
		SecretName:       payload.SecretName,
		MetadataFolder:   payload.MetadataFolder,
		Runner:           payload.Runner,
		ModelTag:         payload.ModelTag,
		CheatMode:        payload.CheatMode,
		DryRun:           payload.DryRun,
		WipeDB:           payload.WipeDB,
		Mode:             domain.LoadMode(payload.Mode),
		SplitTransaction: payload.SplitTransaction,
	}
}

func pullStepsFromDomain(steps []domain.PullStep) []pullStepPayload {
	if steps == nil {
		return nil
	}
	out := make([]pullStepPayload, 0, len(steps))
	for _, step := range steps {
		payload := pullStepPayload{}
		if step.GitClone != nil {
			payload.GitClone = &gitClonePayload{
				ID:                step.GitClone.ID,
				Repository:        step.GitClone.Repository,
				Branch:            step.GitClone.Branch,
				IncludeSubmodules: step.GitClone.IncludeSubmodules,
			}
		}
		if step.PipInstall != nil {
			payload.PipInstall = &pipInstallPayload{
				RequirementsFile: step.PipInstall.RequirementsFile,
				Directory:        step.PipInstall.Directory,
				StreamOutput:     step.PipInstall.StreamOutput,
			}
		}
		out = append(out, payload)
	}
	return out
}

func pullStepsToDomain(steps []pullStepPayload) []domain.PullStep {
	if steps == nil {
		return nil
	}
	out := make([]domain.PullStep, 0, len(steps))
	for _, payload := range steps {
		step := domain.PullStep{}
		if payload.GitClone != nil {
			step.GitClone = &domain.GitCloneStep{
				ID:                payload.GitClone.ID,
				Repository:        payload.GitClone.Repository,
				Branch:            payload.GitClone.Branch,
				IncludeSubmodules: payload.GitClone.IncludeSubmodules,
			}
		}
		if payload.PipInstall != nil {
			step.PipInstall = &domain.PipInstallStep{
				RequirementsFile: payload.PipInstall.RequirementsFile,
				Directory:        payload.PipInstall.Directory,
				StreamOutput:     payload.PipInstall.StreamOutput,
			}
		}
		out = append(out, step)
	}
	return out
}
