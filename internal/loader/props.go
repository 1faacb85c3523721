package loader

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	// Hard coded values for the C3DC hub.
	DomainValue       = "clinicalcommons.ccdi.cancer.gov"
	MetadataDelimiter = ";"

	relPropDelimiter = "$"
)

var typeMapping = map[string]string{
	"string":   "String",
	"number":   "Float",
	"integer":  "Int",
	"boolean":  "Boolean",
	"array":    "Array",
	"object":   "Object",
	"datetime": "DateTime",
	"date":     "Date",
	"TBD":      "String",
}

// PropsFile is the loader properties document derived from the data model.
type PropsFile struct {
	Properties Props `yaml:"Properties"`
}

type Props struct {
	DomainValue      string            `yaml:"domain_value"`
	RelPropDelimiter string            `yaml:"rel_prop_delimiter"`
	Delimiter        string            `yaml:"delimiter"`
	Plurals          map[string]string `yaml:"plurals"`
	TypeMapping      map[string]string `yaml:"type_mapping"`
	IDFields         map[string]string `yaml:"id_fields"`
}

// NodeNames lists the model's node names in sorted order.
func (p Props) NodeNames() []string {
	out := make([]string, 0, len(p.Plurals))
	for name := range p.Plurals {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BuildProps derives the props document from the model YAML: one plural and
// one id field per node under the model's Nodes map, plus the fixed
// type-mapping table and delimiters.
func BuildProps(modelYAML []byte, delimiter, domainValue string) (PropsFile, error) {
	var model struct {
		Nodes map[string]yaml.Node `yaml:"Nodes"`
	}
	if err := yaml.Unmarshal(modelYAML, &model); err != nil {
		return PropsFile{}, fmt.Errorf("parse model yaml: %w", err)
	}
	if len(model.Nodes) == 0 {
		return PropsFile{}, fmt.Errorf("model yaml has no Nodes")
	}

	plurals := make(map[string]string, len(model.Nodes))
	idFields := make(map[string]string, len(model.Nodes))
	for node := range model.Nodes {
		plurals[node] = pluralizeNodeName(node)
		idFields[node] = "id"
	}

	mapping := make(map[string]string, len(typeMapping))
	for k, v := range typeMapping {
		mapping[k] = v
	}

	return PropsFile{
		Properties: Props{
			DomainValue:      domainValue,
			RelPropDelimiter: relPropDelimiter,
			Delimiter:        delimiter,
			Plurals:          plurals,
			TypeMapping:      mapping,
			IDFields:         idFields,
		},
	}, nil
}

// BuildPropsFromFile reads the model YAML from disk and writes the derived
// props document next to it, returning the props path and document.
func BuildPropsFromFile(modelPath, propsPath, delimiter, domainValue string) (PropsFile, error) {
	raw, err := os.ReadFile(modelPath)
	if err != nil {
		return PropsFile{}, fmt.Errorf("read model yaml: %w", err)
	}
	props, err := BuildProps(raw, delimiter, domainValue)
	if err != nil {
		return PropsFile{}, err
	}
	encoded, err := yaml.Marshal(props)
	if err != nil {
		return PropsFile{}, fmt.Errorf("encode props: %w", err)
	}
	if err := os.WriteFile(propsPath, encoded, 0o644); err != nil {
		return PropsFile{}, fmt.Errorf("write props: %w", err)
	}
	return props, nil
}
