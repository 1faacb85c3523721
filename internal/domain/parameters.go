package domain

import (
	"fmt"
	"strings"
)

// LoadMode selects the load strategy of the data loader.
type LoadMode string

const (
	ModeUpsert LoadMode = "upsert"
	ModeNew    LoadMode = "new"
	ModeDelete LoadMode = "delete"
)

func ParseLoadMode(raw string) (LoadMode, error) {
	switch LoadMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeUpsert:
		return ModeUpsert, nil
	case ModeNew:
		return ModeNew, nil
	case ModeDelete:
		return ModeDelete, nil
	default:
		return "", fmt.Errorf("mode must be one of: upsert, new, delete (got %q)", raw)
	}
}

// ParameterSet is the parameter surface the deployment exposes to the flow
// entrypoint. Manifest defaults may be overridden per run.
type ParameterSet struct {
	SecretName       string
	MetadataFolder   string
	Runner           string
	ModelTag         string
	CheatMode        bool
	DryRun           bool
	WipeDB           bool
	Mode             LoadMode
	SplitTransaction bool
}

// DefaultParameters returns the flow defaults applied when the manifest does
// not pin a value. SecretName has no static default: the manifest templates
// it from a platform variable.
func DefaultParameters() ParameterSet {
	return ParameterSet{
		ModelTag:         "2.1.0",
		Mode:             ModeUpsert,
		SplitTransaction: true,
	}
}

func (p ParameterSet) Validate() error {
	if strings.TrimSpace(p.SecretName) == "" {
		return fmt.Errorf("secret_name is required")
	}
	if _, err := ParseLoadMode(string(p.Mode)); err != nil {
		return err
	}
	return nil
}

// MergeOverrides applies per-run overrides on top of the deployment defaults.
// Unknown keys and wrongly typed values are rejected.
func (p ParameterSet) MergeOverrides(overrides map[string]any) (ParameterSet, error) {
	merged := p
	for key, value := range overrides {
		switch key {
		case "secret_name":
			s, ok := value.(string)
			if !ok {
				return ParameterSet{}, typeError(key, "string", value)
			}
			merged.SecretName = s
		case "metadata_folder":
			s, ok := value.(string)
			if !ok {
				return ParameterSet{}, typeError(key, "string", value)
			}
			merged.MetadataFolder = s
		case "runner":
			s, ok := value.(string)
			if !ok {
				return ParameterSet{}, typeError(key, "string", value)
			}
			merged.Runner = s
		case "model_tag":
			s, ok := value.(string)
			if !ok {
				return ParameterSet{}, typeError(key, "string", value)
			}
			merged.ModelTag = s
		case "cheat_mode":
			b, ok := value.(bool)
			if !ok {
				return ParameterSet{}, typeError(key, "bool", value)
			}
			merged.CheatMode = b
		case "dry_run":
			b, ok := value.(bool)
			if !ok {
				return ParameterSet{}, typeError(key, "bool", value)
			}
			merged.DryRun = b
		case "wipe_db":
			b, ok := value.(bool)
			if !ok {
				return ParameterSet{}, typeError(key, "bool", value)
			}
			merged.WipeDB = b
		case "mode":
			s, ok := value.(string)
			if !ok {
				return ParameterSet{}, typeError(key, "string", value)
			}
			mode, err := ParseLoadMode(s)
			if err != nil {
				return ParameterSet{}, err
			}
			merged.Mode = mode
		case "split_transaction":
			b, ok := value.(bool)
			if !ok {
				return ParameterSet{}, typeError(key, "bool", value)
			}
			merged.SplitTransaction = b
		default:
			return ParameterSet{}, fmt.Errorf("unknown parameter %q", key)
		}
	}
	return merged, nil
}

func typeError(key, want string, got any) error {
	return fmt.Errorf("parameter %q must be a %s (got %T)", key, want, got)
}
