package manifest

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

// Template placeholders are double-brace expressions resolved against prior
// step outputs ("<step_id>.<field>") or platform-level named variables
// ("variables.<name>").
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_][A-Za-z0-9_.-]*)\s*\}\}`)

const variablePrefix = "variables."

// placeholderRef returns the reference of a value that consists of a single
// placeholder expression, and whether the value is one.
func placeholderRef(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	match := placeholderPattern.FindStringSubmatch(trimmed)
	if match == nil || match[0] != trimmed {
		return "", false
	}
	return match[1], true
}

// CloneDirectory is the output directory name a clone step produces, derived
// from the repository URL.
func CloneDirectory(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(repoURL), "/"), ".git")
	return path.Base(trimmed)
}

// ResolvePullSteps substitutes every template placeholder in a pull sequence.
// Step outputs become addressable only after the declaring step, so forward
// and self references fail, as do references to unknown steps or variables.
func ResolvePullSteps(steps []domain.PullStep, variables map[string]string) ([]domain.PullStep, error) {
	outputs := make(map[string]map[string]string)
	resolved := make([]domain.PullStep, 0, len(steps))

	for i, step := range steps {
		if err := step.ValidateShape(); err != nil {
			return nil, fmt.Errorf("pull[%d]: %w", i, err)
		}
		lookup := func(ref string) (string, error) {
			return resolveRef(ref, variables, outputs)
		}

		switch step.Kind() {
		case domain.StepKindGitClone:
			clone := *step.GitClone
			var err error
			if clone.Repository, err = resolveString(clone.Repository, lookup); err != nil {
				return nil, fmt.Errorf("pull[%d] git_clone.repository: %w", i, err)
			}
			if clone.Branch, err = resolveString(clone.Branch, lookup); err != nil {
				return nil, fmt.Errorf("pull[%d] git_clone.branch: %w", i, err)
			}
			if id := strings.TrimSpace(clone.ID); id != "" {
				if _, exists := outputs[id]; exists {
					return nil, fmt.Errorf("pull[%d]: duplicate step id %q", i, id)
				}
				outputs[id] = map[string]string{
					"directory": CloneDirectory(clone.Repository),
				}
			}
			resolved = append(resolved, domain.PullStep{GitClone: &clone})

		case domain.StepKindPipInstall:
			install := *step.PipInstall
			var err error
			if install.Directory, err = resolveString(install.Directory, lookup); err != nil {
				return nil, fmt.Errorf("pull[%d] pip_install.directory: %w", i, err)
			}
			if install.RequirementsFile, err = resolveString(install.RequirementsFile, lookup); err != nil {
				return nil, fmt.Errorf("pull[%d] pip_install.requirements_file: %w", i, err)
			}
			resolved = append(resolved, domain.PullStep{PipInstall: &install})
		}
	}
	return resolved, nil
}

// ResolveParameters substitutes variables.* placeholders in the string
// parameters of a deployment's defaults.
func ResolveParameters(p domain.ParameterSet, variables map[string]string) (domain.ParameterSet, error) {
	lookup := func(ref string) (string, error) {
		return resolveRef(ref, variables, nil)
	}

	var err error
	if p.SecretName, err = resolveString(p.SecretName, lookup); err != nil {
		return domain.ParameterSet{}, fmt.Errorf("parameters.secret_name: %w", err)
	}
	if p.MetadataFolder, err = resolveString(p.MetadataFolder, lookup); err != nil {
		return domain.ParameterSet{}, fmt.Errorf("parameters.metadata_folder: %w", err)
	}
	if p.Runner, err = resolveString(p.Runner, lookup); err != nil {
		return domain.ParameterSet{}, fmt.Errorf("parameters.runner: %w", err)
	}
	if p.ModelTag, err = resolveString(p.ModelTag, lookup); err != nil {
		return domain.ParameterSet{}, fmt.Errorf("parameters.model_tag: %w", err)
	}
	return p, nil
}

// ResolveDeployment resolves a deployment's templated defaults and its
// effective pull sequence against the platform variable set.
func ResolveDeployment(dep domain.Deployment, manifestPull []domain.PullStep, variables map[string]string) (domain.Deployment, error) {
	params, err := ResolveParameters(dep.Parameters, variables)
	if err != nil {
		return domain.Deployment{}, err
	}
	pull, err := ResolvePullSteps(dep.EffectivePull(manifestPull), variables)
	if err != nil {
		return domain.Deployment{}, err
	}
	dep.Parameters = params
	dep.Pull = pull
	return dep, nil
}

func resolveString(value string, lookup func(ref string) (string, error)) (string, error) {
	var resolveErr error
	out := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		if resolveErr != nil {
			return match
		}
		ref := placeholderPattern.FindStringSubmatch(match)[1]
		replacement, err := lookup(ref)
		if err != nil {
			resolveErr = err
			return match
		}
		return replacement
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

func resolveRef(ref string, variables map[string]string, outputs map[string]map[string]string) (string, error) {
	if name, ok := strings.CutPrefix(ref, variablePrefix); ok {
		value, found := variables[name]
		if !found {
			return "", fmt.Errorf("unknown platform variable %q", name)
		}
		return value, nil
	}

	id, field, ok := strings.Cut(ref, ".")
	if !ok {
		return "", fmt.Errorf("malformed template reference %q", ref)
	}
	stepOutputs, found := outputs[id]
	if !found {
		return "", fmt.Errorf("reference %q does not match an earlier step id or platform variable", ref)
	}
	value, found := stepOutputs[field]
	if !found {
		return "", fmt.Errorf("step %q has no output field %q", id, field)
	}
	return value, nil
}
