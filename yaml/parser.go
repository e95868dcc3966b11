package yaml

import (
	"bytes"
	"fmt"
	"io"
	"os"

	goyaml "github.com/goccy/go-yaml"
)

// Parser handles parsing YAML flow definitions.
type Parser struct{}

// NewParser creates a new YAML parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads and parses a YAML flow definition from a reader.
func (p *Parser) Parse(r io.Reader) (*FlowDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read yaml: %w", err)
	}

	var fd FlowDefinition
	if err := goyaml.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	return &fd, nil
}

// ParseFile reads and parses a YAML flow definition from a file.
func (p *Parser) ParseFile(filename string) (*FlowDefinition, error) {
	// #nosec G304 - this parser is meant to accept arbitrary file paths;
	// callers are expected to validate paths per their own security needs.
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return p.Parse(file)
}

// ParseString parses a YAML flow definition from a string.
func (p *Parser) ParseString(s string) (*FlowDefinition, error) {
	return p.Parse(bytes.NewReader([]byte(s)))
}

// Marshal converts a flow definition to YAML format.
func (p *Parser) Marshal(fd *FlowDefinition) ([]byte, error) {
	return goyaml.Marshal(fd)
}

// MarshalToFile writes a flow definition to a YAML file.
func (p *Parser) MarshalToFile(fd *FlowDefinition, filename string) error {
	data, err := p.Marshal(fd)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0o600)
}

// Example shows the layout of a YAML flow definition. Its node configs and
// connection actions are illustrative: they are not the config keys the
// builtin validate and router builders read, nor the actions those nodes
// report, so the flow does not build as written against the builtin registry.
func Example() string {
	return `name: support_triage
description: Route a support message to the right handler
version: "1.0.0"
start: input_validator

nodes:
  - name: input_validator
    type: validate
    config:
      required_fields: ["message", "user_id"]
    timeout: 5s

  - name: intent_router
    type: router
    config:
      field: intent
      routes:
        billing: billing_handler
        technical: technical_handler
      default: general_handler
    retry:
      max_attempts: 3
      delay: 1s
      multiplier: 2

  - name: billing_handler
    type: transform
    config:
      template: "Routed to billing: {{.message}}"

  - name: technical_handler
    type: transform
    config:
      template: "Routed to technical support: {{.message}}"

  - name: general_handler
    type: echo

connections:
  - from: input_validator
    to: intent_router
    action: valid

  - from: intent_router
    to: billing_handler
    action: billing

  - from: intent_router
    to: technical_handler
    action: technical

  - from: intent_router
    to: general_handler
    action: default
`
}
