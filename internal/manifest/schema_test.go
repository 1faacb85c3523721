package manifest

import "testing"

func TestValidateSchema_OK(t *testing.T) {
	if err := ValidateSchema([]byte(sampleManifest)); err != nil {
		t.Fatalf("ValidateSchema() err=%v", err)
	}
}

func TestValidateSchema_MissingRequired(t *testing.T) {
	raw := []byte(`
name: hubloader
deployments: []
`)
	if err := ValidateSchema(raw); err == nil {
		t.Fatalf("missing platform-version and empty deployments expected error")
	}
}

func TestValidateSchema_UnknownDeploymentField(t *testing.T) {
	raw := []byte(`
name: hubloader
platform-version: 3.1.2
deployments:
  - name: loader
    version: 1.0.0
    tags: []
    description: ""
    schedule: null
    flow_name: c3dc_hub_data_loader
    entrypoint: load.py:main
    unexpected: true
    parameters:
      secret_name: c3dc-dev
      metadata_folder: ""
      runner: ""
      model_tag: 2.1.0
      cheat_mode: false
      dry_run: false
      wipe_db: false
      mode: upsert
      split_transaction: true
    work_pool:
      name: hub-pool
      work_queue_name: default
`)
	if err := ValidateSchema(raw); err == nil {
		t.Fatalf("unknown deployment field expected error")
	}
}

func TestValidateSchema_StepWithTwoActions(t *testing.T) {
	raw := []byte(`
name: hubloader
platform-version: 3.1.2
pull:
  - git_clone:
      repository: https://example.org/flows.git
      branch: main
    pip_install:
      requirements_file: requirements.txt
deployments:
  - name: loader
    version: 1.0.0
    tags: []
    description: ""
    schedule: null
    flow_name: c3dc_hub_data_loader
    entrypoint: load.py:main
    parameters:
      secret_name: c3dc-dev
      metadata_folder: ""
      runner: ""
      model_tag: 2.1.0
      cheat_mode: false
      dry_run: false
      wipe_db: false
      mode: upsert
      split_transaction: true
    work_pool:
      name: hub-pool
      work_queue_name: default
`)
	if err := ValidateSchema(raw); err == nil {
		t.Fatalf("pull step with two actions expected error")
	}
}

func TestValidateSchema_BadEntrypointPattern(t *testing.T) {
	raw := []byte(`
name: hubloader
platform-version: 3.1.2
deployments:
  - name: loader
    version: 1.0.0
    tags: []
    description: ""
    schedule: null
    flow_name: c3dc_hub_data_loader
    entrypoint: no-colon
    parameters:
      secret_name: c3dc-dev
      metadata_folder: ""
      runner: ""
      model_tag: 2.1.0
      cheat_mode: false
      dry_run: false
      wipe_db: false
      mode: upsert
      split_transaction: true
    work_pool:
      name: hub-pool
      work_queue_name: default
`)
	if err := ValidateSchema(raw); err == nil {
		t.Fatalf("entrypoint without colon expected error")
	}
}
