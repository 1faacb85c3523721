package manifest

import (
	"fmt"
	"strings"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
	"github.com/c3dc-labs/hubloader-go/internal/schedule"
)

// Validate performs the strict structural checks the control plane applies
// before a manifest is registered, collecting every issue found.
func Validate(m domain.Manifest) error {
	issues := &ValidationError{}

	if strings.TrimSpace(m.Name) == "" {
		issues.Add("name is required")
	}
	if strings.TrimSpace(m.PlatformVersion) == "" {
		issues.Add("platform-version is required")
	}
	if len(m.Deployments) == 0 {
		issues.Add("deployments must contain at least one deployment")
	}

	validatePullSequence(issues, "pull", m.Pull)
	validatePullSequence(issues, "build", m.Build)
	validatePullSequence(issues, "push", m.Push)

	names := make(map[string]struct{}, len(m.Deployments))
	for i, dep := range m.Deployments {
		prefix := fmt.Sprintf("deployments[%d]", i)
		name := strings.TrimSpace(dep.Name)
		if name == "" {
			issues.Add(prefix + " name is required")
		} else {
			if _, exists := names[name]; exists {
				issues.Add(fmt.Sprintf("duplicate deployment name %q", name))
			}
			names[name] = struct{}{}
			prefix = fmt.Sprintf("deployment %q", name)
		}

		if strings.TrimSpace(dep.FlowName) == "" {
			issues.Add(prefix + " flow_name is required")
		}
		if strings.TrimSpace(dep.Entrypoint.File) == "" || strings.TrimSpace(dep.Entrypoint.Function) == "" {
			issues.Add(prefix + " entrypoint must be <file>:<function> with non-empty parts")
		}
		if strings.TrimSpace(dep.WorkPool.Name) == "" {
			issues.Add(prefix + " work_pool.name is required")
		}
		if strings.TrimSpace(dep.WorkPool.WorkQueue) == "" {
			issues.Add(prefix + " work_pool.work_queue_name is required")
		}
		for key := range dep.WorkPool.Env {
			if strings.TrimSpace(key) == "" {
				issues.Add(prefix + " job_variables.env contains an empty variable name")
			}
		}

		if strings.TrimSpace(dep.Parameters.SecretName) == "" {
			issues.Add(prefix + " parameters.secret_name is required")
		}
		if _, err := domain.ParseLoadMode(string(dep.Parameters.Mode)); err != nil {
			issues.Add(prefix + " parameters." + err.Error())
		}
		if strings.TrimSpace(dep.Parameters.ModelTag) == "" {
			issues.Add(prefix + " parameters.model_tag is required")
		}

		if dep.Schedule.Enabled() {
			if err := schedule.Validate(dep.Schedule); err != nil {
				issues.Add(fmt.Sprintf("%s schedule invalid: %s", prefix, err.Error()))
			}
		}

		if len(dep.Pull) > 0 {
			validatePullSequence(issues, prefix+".pull", dep.Pull)
		} else if len(m.Pull) == 0 {
			issues.Add(prefix + " has no pull sequence (neither deployment nor manifest level)")
		}
	}

	return issues.OrNil()
}

func validatePullSequence(issues *ValidationError, label string, steps []domain.PullStep) {
	ids := make(map[string]struct{})
	lastCloneWithID := ""
	for i, step := range steps {
		prefix := fmt.Sprintf("%s[%d]", label, i)
		if err := step.ValidateShape(); err != nil {
			issues.Add(prefix + " " + err.Error())
			continue
		}
		switch step.Kind() {
		case domain.StepKindGitClone:
			clone := step.GitClone
			if strings.TrimSpace(clone.Repository) == "" {
				issues.Add(prefix + " git_clone.repository is required")
			}
			if strings.TrimSpace(clone.Branch) == "" {
				issues.Add(prefix + " git_clone.branch must pin an explicit branch")
			}
			id := strings.TrimSpace(clone.ID)
			if id != "" {
				if _, exists := ids[id]; exists {
					issues.Add(fmt.Sprintf("%s duplicate step id %q", prefix, id))
				}
				ids[id] = struct{}{}
				lastCloneWithID = id
			}
		case domain.StepKindPipInstall:
			install := step.PipInstall
			if strings.TrimSpace(install.RequirementsFile) == "" {
				issues.Add(prefix + " pip_install.requirements_file is required")
			}
			if lastCloneWithID == "" {
				issues.Add(prefix + " pip_install has no preceding clone step with an id to resolve against")
			}
			if ref, ok := placeholderRef(install.Directory); ok {
				id, field, found := strings.Cut(ref, ".")
				if !found || field != "directory" {
					issues.Add(fmt.Sprintf("%s pip_install.directory reference %q must be <step_id>.directory", prefix, ref))
				} else if _, declared := ids[id]; !declared {
					issues.Add(fmt.Sprintf("%s pip_install.directory references undeclared step %q", prefix, id))
				}
			}
		}
	}
}
