package loader

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

const sampleModel = `
Nodes:
  participant:
    Props:
      - id
      - sex_at_birth
  study:
    Props:
      - id
      - study_name
  family_relationship:
    Props:
      - id
      - relationship
`

func TestBuildProps(t *testing.T) {
	props, err := BuildProps([]byte(sampleModel), MetadataDelimiter, DomainValue)
	if err != nil {
		t.Fatalf("BuildProps() err=%v", err)
	}

	p := props.Properties
	if p.DomainValue != DomainValue {
		t.Fatalf("DomainValue=%q", p.DomainValue)
	}
	if p.Delimiter != ";" {
		t.Fatalf("Delimiter=%q, want ;", p.Delimiter)
	}
	if p.RelPropDelimiter != "$" {
		t.Fatalf("RelPropDelimiter=%q, want $", p.RelPropDelimiter)
	}

	wantPlurals := map[string]string{
		"participant":         "participants",
		"study":               "studies",
		"family_relationship": "family_relationships",
	}
	if !reflect.DeepEqual(p.Plurals, wantPlurals) {
		t.Fatalf("Plurals=%v, want %v", p.Plurals, wantPlurals)
	}
	for node, field := range p.IDFields {
		if field != "id" {
			t.Fatalf("IDFields[%s]=%q, want id", node, field)
		}
	}
	if p.TypeMapping["datetime"] != "DateTime" || p.TypeMapping["TBD"] != "String" {
		t.Fatalf("TypeMapping=%v", p.TypeMapping)
	}

	wantNames := []string{"family_relationship", "participant", "study"}
	if !reflect.DeepEqual(p.NodeNames(), wantNames) {
		t.Fatalf("NodeNames()=%v, want %v", p.NodeNames(), wantNames)
	}
}

func TestBuildProps_NoNodes(t *testing.T) {
	if _, err := BuildProps([]byte("Handles: {}\n"), ";", DomainValue); err == nil {
		t.Fatalf("model without Nodes expected error")
	}
}

func TestBuildProps_BadYAML(t *testing.T) {
	if _, err := BuildProps([]byte("Nodes: [unbalanced"), ";", DomainValue); err == nil {
		t.Fatalf("malformed yaml expected error")
	}
}

func TestBuildPropsFromFile(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "c3dc-model.yml")
	propsPath := filepath.Join(dir, "props_file.yaml")
	if err := os.WriteFile(modelPath, []byte(sampleModel), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	built, err := BuildPropsFromFile(modelPath, propsPath, MetadataDelimiter, DomainValue)
	if err != nil {
		t.Fatalf("BuildPropsFromFile() err=%v", err)
	}

	raw, err := os.ReadFile(propsPath)
	if err != nil {
		t.Fatalf("read props: %v", err)
	}
	var decoded PropsFile
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode props: %v", err)
	}
	if !reflect.DeepEqual(decoded, built) {
		t.Fatalf("written props differ from returned props")
	}
}
