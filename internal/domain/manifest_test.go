package domain

import "testing"

func TestParseEntrypoint(t *testing.T) {
	cases := []struct {
		raw      string
		file     string
		function string
		wantErr  bool
	}{
		{raw: "c3dc_hub_data_loader.py:c3dc_hub_data_loader", file: "c3dc_hub_data_loader.py", function: "c3dc_hub_data_loader"},
		{raw: " flows/load.py : main ", file: "flows/load.py", function: "main"},
		{raw: "", wantErr: true},
		{raw: "no-colon", wantErr: true},
		{raw: ":func", wantErr: true},
		{raw: "file.py:", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseEntrypoint(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseEntrypoint(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseEntrypoint(%q) err=%v", tc.raw, err)
		}
		if got.File != tc.file || got.Function != tc.function {
			t.Fatalf("ParseEntrypoint(%q)=%+v, want %s:%s", tc.raw, got, tc.file, tc.function)
		}
	}
}

func TestEntrypoint_String(t *testing.T) {
	e := Entrypoint{File: "load.py", Function: "main"}
	if got := e.String(); got != "load.py:main" {
		t.Fatalf("String()=%q, want load.py:main", got)
	}
}

func TestPullStep_Kind(t *testing.T) {
	clone := PullStep{GitClone: &GitCloneStep{Repository: "r", Branch: "b"}}
	if got := clone.Kind(); got != StepKindGitClone {
		t.Fatalf("Kind()=%q, want %q", got, StepKindGitClone)
	}
	install := PullStep{PipInstall: &PipInstallStep{RequirementsFile: "requirements.txt"}}
	if got := install.Kind(); got != StepKindPipInstall {
		t.Fatalf("Kind()=%q, want %q", got, StepKindPipInstall)
	}
	if got := (PullStep{}).Kind(); got != "" {
		t.Fatalf("Kind()=%q, want empty", got)
	}
}

func TestPullStep_ValidateShape(t *testing.T) {
	if err := (PullStep{}).ValidateShape(); err == nil {
		t.Fatalf("empty step expected error")
	}
	both := PullStep{
		GitClone:   &GitCloneStep{Repository: "r", Branch: "b"},
		PipInstall: &PipInstallStep{RequirementsFile: "requirements.txt"},
	}
	if err := both.ValidateShape(); err == nil {
		t.Fatalf("step with two actions expected error")
	}
	one := PullStep{GitClone: &GitCloneStep{Repository: "r", Branch: "b"}}
	if err := one.ValidateShape(); err != nil {
		t.Fatalf("ValidateShape() err=%v", err)
	}
}

func TestSchedule_Enabled(t *testing.T) {
	if (Schedule{}).Enabled() {
		t.Fatalf("zero schedule should be disabled")
	}
	if (Schedule{Cron: "  "}).Enabled() {
		t.Fatalf("blank cron should be disabled")
	}
	if !(Schedule{Cron: "0 6 * * *"}).Enabled() {
		t.Fatalf("cron schedule should be enabled")
	}
}

func TestDeployment_EffectivePull(t *testing.T) {
	manifestPull := []PullStep{{GitClone: &GitCloneStep{Repository: "manifest", Branch: "main"}}}
	ownPull := []PullStep{{GitClone: &GitCloneStep{Repository: "own", Branch: "main"}}}

	dep := Deployment{}
	got := dep.EffectivePull(manifestPull)
	if len(got) != 1 || got[0].GitClone.Repository != "manifest" {
		t.Fatalf("EffectivePull without own steps should fall back to manifest sequence")
	}

	dep.Pull = ownPull
	got = dep.EffectivePull(manifestPull)
	if len(got) != 1 || got[0].GitClone.Repository != "own" {
		t.Fatalf("EffectivePull should prefer the deployment's own sequence")
	}
}

func TestDeployment_HasTag(t *testing.T) {
	dep := Deployment{Tags: []string{"c3dc", "prod"}}
	if !dep.HasTag("prod") {
		t.Fatalf("HasTag(prod)=false, want true")
	}
	if dep.HasTag("staging") {
		t.Fatalf("HasTag(staging)=true, want false")
	}
}
