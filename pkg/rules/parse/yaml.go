package parse

import (
	"gopkg.in/yaml.v3"
)

// yamlDocument is the intermediate structure a rule file decodes into.
// It matches the YAML shape before conversion to typed rules.
type yamlDocument struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Rules       []yamlRule `yaml:"rules"`
}

// yamlRule is one entry of the rules list. Position fields record where
// the rule begins so errors can point at it.
type yamlRule struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Subject   *yamlSubject   `yaml:"subject"`
	Predicate *yamlPredicate `yaml:"predicate"`
	Effect    string         `yaml:"effect"`
	Priority  int            `yaml:"priority"`
	Reason    string         `yaml:"reason"`

	line   int
	column int
}

// UnmarshalYAML decodes the rule and records its source position.
func (r *yamlRule) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlRule
	if err := node.Decode((*plain)(r)); err != nil {
		return err
	}
	r.line = node.Line
	r.column = node.Column
	return nil
}

// yamlSubject is the subject mapping of a rule.
type yamlSubject struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`

	line   int
	column int
}

// UnmarshalYAML decodes the subject and records its source position.
func (s *yamlSubject) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlSubject
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.line = node.Line
	s.column = node.Column
	return nil
}

// yamlParam is one predicate parameter, kept in document order so
// errors about unknown parameters come out deterministically.
type yamlParam struct {
	name string
	node *yaml.Node
}

// yamlPredicate is the predicate mapping of a rule. The type field
// selects the predicate variant; remaining keys are its parameters,
// decoded later against the variant's expectations.
type yamlPredicate struct {
	Type   string
	params []yamlParam

	node   *yaml.Node
	line   int
	column int
}

// UnmarshalYAML walks the mapping by hand to keep each parameter's
// node, and with it the position, available for error reporting.
func (p *yamlPredicate) UnmarshalYAML(node *yaml.Node) error {
	p.node = node
	p.line = node.Line
	p.column = node.Column

	if node.Kind != yaml.MappingNode {
		// Tolerated here; the builder reports a positioned error so the
		// rest of the file still gets checked.
		return nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		value := node.Content[i+1]
		if key.Value == "type" {
			p.Type = value.Value
			continue
		}
		p.params = append(p.params, yamlParam{name: key.Value, node: value})
	}
	return nil
}

// param returns the parameter node with the given name.
func (p *yamlPredicate) param(name string) (*yaml.Node, bool) {
	for _, pr := range p.params {
		if pr.name == name {
			return pr.node, true
		}
	}
	return nil, false
}

// decodeDocument parses rule file bytes into the intermediate
// structure.
func decodeDocument(data []byte) (*yamlDocument, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
