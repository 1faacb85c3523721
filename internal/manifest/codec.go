package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

// Parse decodes a manifest document into its domain form. Parsing is
// lenient about semantics: use Validate and ValidateSchema for the strict
// checks the control plane applies before registration.
func Parse(raw []byte) (domain.Manifest, error) {
	var payload manifestPayload
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return domain.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return payload.toDomain()
}

// Marshal serializes a manifest with stable key names so that a parse,
// marshal, parse cycle yields a structurally identical document.
func Marshal(m domain.Manifest) ([]byte, error) {
	return yaml.Marshal(payloadFromDomain(m))
}

type manifestPayload struct {
	Name            string              `yaml:"name"`
	PlatformVersion string              `yaml:"platform-version"`
	Build           []pullStepPayload   `yaml:"build"`
	Push            []pullStepPayload   `yaml:"push"`
	Pull            []pullStepPayload   `yaml:"pull"`
	Deployments     []deploymentPayload `yaml:"deployments"`
}

type pullStepPayload struct {
	GitClone   *gitClonePayload   `yaml:"git_clone,omitempty"`
	PipInstall *pipInstallPayload `yaml:"pip_install,omitempty"`
}

type gitClonePayload struct {
	ID                string `yaml:"id,omitempty"`
	Repository        string `yaml:"repository"`
	Branch            string `yaml:"branch"`
	IncludeSubmodules bool   `yaml:"include_submodules,omitempty"`
}

type pipInstallPayload struct {
	RequirementsFile string `yaml:"requirements_file"`
	Directory        string `yaml:"directory,omitempty"`
	StreamOutput     bool   `yaml:"stream_output"`
}

type deploymentPayload struct {
	Name        string             `yaml:"name"`
	Version     string             `yaml:"version"`
	Tags        []string           `yaml:"tags"`
	Description string             `yaml:"description"`
	Schedule    schedulePayload    `yaml:"schedule"`
	FlowName    string             `yaml:"flow_name"`
	Entrypoint  string             `yaml:"entrypoint"`
	Parameters  parametersPayload  `yaml:"parameters"`
	WorkPool    workPoolPayload    `yaml:"work_pool"`
	Pull        []pullStepPayload  `yaml:"pull,omitempty"`
}

type schedulePayload struct {
	Cron     string `yaml:"cron,omitempty"`
	Timezone string `yaml:"timezone,omitempty"`
}

type parametersPayload struct {
	SecretName       string `yaml:"secret_name"`
	MetadataFolder   string `yaml:"metadata_folder"`
	Runner           string `yaml:"runner"`
	ModelTag         string `yaml:"model_tag"`
	CheatMode        bool   `yaml:"cheat_mode"`
	DryRun           bool   `yaml:"dry_run"`
	WipeDB           bool   `yaml:"wipe_db"`
	Mode             string `yaml:"mode"`
	SplitTransaction bool   `yaml:"split_transaction"`
}

type workPoolPayload struct {
	Name         string              `yaml:"name"`
	WorkQueue    string              `yaml:"work_queue_name"`
	JobVariables jobVariablesPayload `yaml:"job_variables"`
}

type jobVariablesPayload struct {
	Env map[string]string `yaml:"env,omitempty"`
}

func (p manifestPayload) toDomain() (domain.Manifest, error) {
	m := domain.Manifest{
		Name:            p.Name,
		PlatformVersion: p.PlatformVersion,
		Build:           stepsToDomain(p.Build),
		Push:            stepsToDomain(p.Push),
		Pull:            stepsToDomain(p.Pull),
	}
	for i, dep := range p.Deployments {
		converted, err := dep.toDomain()
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("deployments[%d]: %w", i, err)
		}
		m.Deployments = append(m.Deployments, converted)
	}
	return m, nil
}

func (p deploymentPayload) toDomain() (domain.Deployment, error) {
	entrypoint, err := domain.ParseEntrypoint(p.Entrypoint)
	if err != nil {
		return domain.Deployment{}, err
	}
	mode := domain.LoadMode(p.Parameters.Mode)
	if p.Parameters.Mode != "" {
		mode, err = domain.ParseLoadMode(p.Parameters.Mode)
		if err != nil {
			return domain.Deployment{}, err
		}
	}
	return domain.Deployment{
		Name:        p.Name,
		Version:     p.Version,
		Tags:        p.Tags,
		Description: p.Description,
		Schedule: domain.Schedule{
			Cron:     p.Schedule.Cron,
			Timezone: p.Schedule.Timezone,
		},
		FlowName:   p.FlowName,
		Entrypoint: entrypoint,
		Parameters: domain.ParameterSet{
			SecretName:       p.Parameters.SecretName,
			MetadataFolder:   p.Parameters.MetadataFolder,
			Runner:           p.Parameters.Runner,
			ModelTag:         p.Parameters.ModelTag,
			CheatMode:        p.Parameters.CheatMode,
			DryRun:           p.Parameters.DryRun,
			WipeDB:           p.Parameters.WipeDB,
			Mode:             mode,
			SplitTransaction: p.Parameters.SplitTransaction,
		},
		WorkPool: domain.WorkPool{
			Name:      p.WorkPool.Name,
			WorkQueue: p.WorkPool.WorkQueue,
			Env:       p.WorkPool.JobVariables.Env,
		},
		Pull: stepsToDomain(p.Pull),
	}, nil
}

func stepsToDomain(steps []pullStepPayload) []domain.PullStep {
	if steps == nil {
		return nil
	}
	out := make([]domain.PullStep, 0, len(steps))
	for _, step := range steps {
		converted := domain.PullStep{}
		if step.GitClone != nil {
			converted.GitClone = &domain.GitCloneStep{
				ID:                step.GitClone.ID,
				Repository:        step.GitClone.Repository,
				Branch:            step.GitClone.Branch,
				IncludeSubmodules: step.GitClone.IncludeSubmodules,
			}
		}
		if step.PipInstall != nil {
			converted.PipInstall = &domain.PipInstallStep{
				RequirementsFile: step.PipInstall.RequirementsFile,
				Directory:        step.PipInstall.Directory,
				StreamOutput:     step.PipInstall.StreamOutput,
			}
		}
		out = append(out, converted)
	}
	return out
}

func payloadFromDomain(m domain.Manifest) manifestPayload {
	payload := manifestPayload{
		Name:            m.Name,
		PlatformVersion: m.PlatformVersion,
		Build:           stepsFromDomain(m.Build),
		Push:            stepsFromDomain(m.Push),
		Pull:            stepsFromDomain(m.Pull),
	}
	for _, dep := range m.Deployments {
		payload.Deployments = append(payload.Deployments, deploymentPayload{
			Name:        dep.Name,
			Version:     dep.Version,
			Tags:        dep.Tags,
			Description: dep.Description,
			Schedule: schedulePayload{
				Cron:     dep.Schedule.Cron,
				Timezone: dep.Schedule.Timezone,
			},
			FlowName:   dep.FlowName,
			Entrypoint: dep.Entrypoint.String(),
			Parameters: parametersPayload{
				SecretName:       dep.Parameters.SecretName,
				MetadataFolder:   dep.Parameters.MetadataFolder,
				Runner:           dep.Parameters.Runner,
				ModelTag:         dep.Parameters.ModelTag,
				CheatMode:        dep.Parameters.CheatMode,
				DryRun:           dep.Parameters.DryRun,
				WipeDB:           dep.Parameters.WipeDB,
				Mode:             string(dep.Parameters.Mode),
				SplitTransaction: dep.Parameters.SplitTransaction,
			},
			WorkPool: workPoolPayload{
				Name:      dep.WorkPool.Name,
				WorkQueue: dep.WorkPool.WorkQueue,
				JobVariables: jobVariablesPayload{
					Env: dep.WorkPool.Env,
				},
			},
			Pull: stepsFromDomain(dep.Pull),
		})
	}
	return payload
}

func stepsFromDomain(steps []domain.PullStep) []pullStepPayload {
	if steps == nil {
		return nil
	}
	out := make([]pullStepPayload, 0, len(steps))
	for _, step := range steps {
		converted := pullStepPayload{}
		if step.GitClone != nil {
			converted.GitClone = &gitClonePayload{
				ID:                step.GitClone.ID,
				Repository:        step.GitClone.Repository,
				Branch:            step.GitClone.Branch,
				IncludeSubmodules: step.GitClone.IncludeSubmodules,
			}
		}
		if step.PipInstall != nil {
			converted.PipInstall = &pipInstallPayload{
				RequirementsFile: step.PipInstall.RequirementsFile,
				Directory:        step.PipInstall.Directory,
				StreamOutput:     step.PipInstall.StreamOutput,
			}
		}
		out = append(out, converted)
	}
	return out
}
