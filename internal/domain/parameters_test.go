package domain

import (
	"strings"
	"testing"
)

func TestParseLoadMode(t *testing.T) {
	cases := []struct {
		raw     string
		want    LoadMode
		wantErr bool
	}{
		{raw: "upsert", want: ModeUpsert},
		{raw: "NEW", want: ModeNew},
		{raw: " delete ", want: ModeDelete},
		{raw: "", wantErr: true},
		{raw: "replace", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseLoadMode(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseLoadMode(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseLoadMode(%q) err=%v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLoadMode(%q)=%q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters()
	if p.ModelTag != "2.1.0" {
		t.Fatalf("ModelTag=%q, want 2.1.0", p.ModelTag)
	}
	if p.Mode != ModeUpsert {
		t.Fatalf("Mode=%q, want upsert", p.Mode)
	}
	if !p.SplitTransaction {
		t.Fatalf("SplitTransaction=false, want true")
	}
	if p.SecretName != "" {
		t.Fatalf("SecretName=%q, want empty", p.SecretName)
	}
}

func TestParameterSet_Validate(t *testing.T) {
	p := DefaultParameters()
	p.SecretName = "c3dc-dev"
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	p.SecretName = " "
	if err := p.Validate(); err == nil {
		t.Fatalf("blank secret_name expected error")
	}

	p.SecretName = "c3dc-dev"
	p.Mode = "replace"
	if err := p.Validate(); err == nil {
		t.Fatalf("unknown mode expected error")
	}
}

func TestMergeOverrides(t *testing.T) {
	base := DefaultParameters()
	base.SecretName = "c3dc-dev"
	base.Runner = "alice"

	merged, err := base.MergeOverrides(map[string]any{
		"metadata_folder": "submissions/2026-08/",
		"dry_run":         true,
		"mode":            "new",
	})
	if err != nil {
		t.Fatalf("MergeOverrides() err=%v", err)
	}
	if merged.MetadataFolder != "submissions/2026-08/" {
		t.Fatalf("MetadataFolder=%q", merged.MetadataFolder)
	}
	if !merged.DryRun {
		t.Fatalf("DryRun=false, want true")
	}
	if merged.Mode != ModeNew {
		t.Fatalf("Mode=%q, want new", merged.Mode)
	}
	if merged.Runner != "alice" {
		t.Fatalf("Runner=%q, defaults must survive unrelated overrides", merged.Runner)
	}
	if base.DryRun {
		t.Fatalf("MergeOverrides must not mutate the receiver")
	}
}

func TestMergeOverrides_UnknownKey(t *testing.T) {
	_, err := DefaultParameters().MergeOverrides(map[string]any{"batch_size": 10})
	if err == nil {
		t.Fatalf("unknown key expected error")
	}
	if !strings.Contains(err.Error(), "batch_size") {
		t.Fatalf("error should name the key, got %v", err)
	}
}

func TestMergeOverrides_WrongType(t *testing.T) {
	_, err := DefaultParameters().MergeOverrides(map[string]any{"wipe_db": "yes"})
	if err == nil {
		t.Fatalf("wrongly typed value expected error")
	}
	_, err = DefaultParameters().MergeOverrides(map[string]any{"runner": 7})
	if err == nil {
		t.Fatalf("wrongly typed value expected error")
	}
}

func TestMergeOverrides_InvalidMode(t *testing.T) {
	_, err := DefaultParameters().MergeOverrides(map[string]any{"mode": "replace"})
	if err == nil {
		t.Fatalf("invalid mode expected error")
	}
}
