package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/yaml"
	"github.com/ohler55/ojg/jp"
	"github.com/xeipuuv/gojsonschema"
)

// readInput is the standard Prep for a builtin node: it reads the
// "input" key every chained node passes its result through.
func readInput(_ context.Context, shared *loom.SharedState) (any, error) {
	v, _ := shared.Get("input")
	return v, nil
}

// writeResultDefault is the standard Post for a builtin node that does
// not need to pick its own routing action: it writes the exec result
// back to "input" and follows the "default" edge.
func writeResultDefault(_ context.Context, shared *loom.SharedState, _, execResult any) (string, error) {
	shared.Set("input", execResult)
	return "default", nil
}

// EchoNodeBuilder builds echo nodes.
type EchoNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *EchoNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "echo",
		Category:    "core",
		Description: "Outputs a message and passes through input",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "Message to output",
					"default":     "Hello from echo node",
				},
			},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{"type": "string"},
				"input":   map[string]interface{}{"type": []string{"null", "object", "string", "number", "boolean", "array"}},
				"node":    map[string]interface{}{"type": "string"},
			},
		},
		Examples: []Example{
			{
				Name:        "Simple echo",
				Description: "Output a message",
				Config: map[string]interface{}{
					"message": "Hello, World!",
				},
				Output: map[string]interface{}{
					"message": "Hello, World!",
					"input":   nil,
					"node":    "echo1",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates an echo node from a definition.
func (b *EchoNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	message := "Hello from echo node"
	if msgInterface, ok := def.Config["message"]; ok {
		if msg, ok := msgInterface.(string); ok {
			message = msg
		}
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(_ context.Context, input any) (any, error) {
			if b.Verbose {
				log.Printf("[%s] Echo: %s", def.Name, message)
			}
			return map[string]interface{}{
				"message": message,
				"input":   input,
				"node":    def.Name,
			}, nil
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// DelayNodeBuilder builds delay nodes.
type DelayNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *DelayNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "delay",
		Category:    "core",
		Description: "Delays execution for a specified duration",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"duration": map[string]interface{}{
					"type":        "string",
					"description": "Duration to delay (e.g., '1s', '500ms')",
					"default":     "1s",
					"pattern":     "^[0-9]+[a-z]+$",
				},
			},
		},
		Examples: []Example{
			{
				Name:        "Simple delay",
				Description: "Delay for 1 second",
				Config: map[string]interface{}{
					"duration": "1s",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a delay node from a definition.
func (b *DelayNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	duration := 1 * time.Second
	if durInterface, ok := def.Config["duration"]; ok {
		if durStr, ok := durInterface.(string); ok {
			if d, err := time.ParseDuration(durStr); err == nil {
				duration = d
			}
		}
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(ctx context.Context, input any) (any, error) {
			if b.Verbose {
				log.Printf("[%s] Delaying for %v", def.Name, duration)
			}
			select {
			case <-time.After(duration):
				return input, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// RouterNodeBuilder builds router nodes.
type RouterNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *RouterNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "router",
		Category:    "core",
		Description: "Routes to a specific node based on configuration",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"route": map[string]interface{}{
					"type":        "string",
					"description": "The route/action to take",
					"default":     "default",
				},
			},
		},
		Examples: []Example{
			{
				Name:        "Simple routing",
				Description: "Route to a specific action",
				Config: map[string]interface{}{
					"route": "success",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a router node from a definition.
func (b *RouterNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	route := "default"
	if routeInterface, ok := def.Config["route"]; ok {
		if r, ok := routeInterface.(string); ok {
			route = r
		}
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithPost(func(_ context.Context, shared *loom.SharedState, _, execResult any) (string, error) {
			if b.Verbose {
				log.Printf("[%s] Routing to: %s", def.Name, route)
			}
			shared.Set("input", execResult)
			return route, nil
		}),
	), nil
}

// TransformNodeBuilder builds transform nodes.
type TransformNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *TransformNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "transform",
		Category:    "data",
		Description: "Transforms input data",
		ConfigSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"transformed": map[string]interface{}{"type": "boolean"},
				"original":    map[string]interface{}{"type": []string{"null", "object", "string", "number", "boolean", "array"}},
				"timestamp":   map[string]interface{}{"type": "string", "format": "date-time"},
				"node":        map[string]interface{}{"type": "string"},
			},
		},
		Examples: []Example{
			{
				Name:        "Simple transform",
				Description: "Wrap input with metadata",
				Config:      map[string]interface{}{},
				Input:       map[string]interface{}{"value": 42},
				Output: map[string]interface{}{
					"transformed": true,
					"original":    map[string]interface{}{"value": 42},
					"timestamp":   "2024-01-01T00:00:00Z",
					"node":        "transform1",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a transform node from a definition.
func (b *TransformNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(_ context.Context, input any) (any, error) {
			if b.Verbose {
				log.Printf("[%s] Transforming input", def.Name)
			}

			result := map[string]interface{}{
				"transformed": true,
				"original":    input,
				"timestamp":   time.Now().Format(time.RFC3339),
				"node":        def.Name,
			}

			// For exercising conditional routing, add a score if the node
			// name suggests it.
			if strings.Contains(def.Name, "score") {
				score := rand.Float64() // #nosec G404 - example data generation, not security
				result["score"] = score
				if b.Verbose {
					log.Printf("[%s] Generated score: %.2f", def.Name, score)
				}
			}

			return result, nil
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// ConditionalNodeBuilder builds conditional routing nodes.
type ConditionalNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *ConditionalNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "conditional",
		Category:    "core",
		Description: "Routes to different nodes based on conditions",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"conditions": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"if":   map[string]interface{}{"type": "string"},
							"then": map[string]interface{}{"type": "string"},
						},
						"required": []string{"if", "then"},
					},
				},
				"else": map[string]interface{}{
					"type":        "string",
					"description": "Default route if no conditions match",
				},
			},
			"required": []string{"conditions"},
		},
		Examples: []Example{
			{
				Name: "Route by score",
				Config: map[string]interface{}{
					"conditions": []map[string]interface{}{
						{"if": "{{gt .score 0.8}}", "then": "high"},
						{"if": "{{gt .score 0.5}}", "then": "medium"},
					},
					"else": "low",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a conditional node from a definition.
func (b *ConditionalNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	conditionsRaw, ok := def.Config["conditions"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("conditions must be an array")
	}

	type condition struct {
		expr  *template.Template
		route string
	}

	conditions := make([]condition, 0, len(conditionsRaw))
	for i, c := range conditionsRaw {
		cond, ok := c.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("condition %d must be an object", i)
		}

		ifExpr, ok := cond["if"].(string)
		if !ok {
			return nil, fmt.Errorf("condition %d missing 'if'", i)
		}

		thenRoute, ok := cond["then"].(string)
		if !ok {
			return nil, fmt.Errorf("condition %d missing 'then'", i)
		}

		tmpl, err := template.New(fmt.Sprintf("cond_%d", i)).Parse(ifExpr)
		if err != nil {
			return nil, fmt.Errorf("condition %d invalid template: %w", i, err)
		}

		conditions = append(conditions, condition{expr: tmpl, route: thenRoute})
	}

	defaultRoute, _ := def.Config["else"].(string)

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithPost(func(_ context.Context, shared *loom.SharedState, _, execResult any) (string, error) {
			for _, cond := range conditions {
				var buf bytes.Buffer
				if err := cond.expr.Execute(&buf, execResult); err != nil {
					if b.Verbose {
						log.Printf("[%s] Condition evaluation error: %v", def.Name, err)
					}
					continue
				}

				result := strings.TrimSpace(buf.String())
				if result == "true" || result == "1" {
					if b.Verbose {
						log.Printf("[%s] Condition matched, routing to: %s", def.Name, cond.route)
					}
					shared.Set("input", execResult)
					return cond.route, nil
				}
			}

			if b.Verbose {
				log.Printf("[%s] No conditions matched, routing to: %s", def.Name, defaultRoute)
			}
			shared.Set("input", execResult)
			return defaultRoute, nil
		}),
	), nil
}

// TemplateNodeBuilder builds template rendering nodes.
type TemplateNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *TemplateNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "template",
		Category:    "data",
		Description: "Renders Go templates with input data",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"template": map[string]interface{}{
					"type":        "string",
					"description": "Go template string to render",
				},
				"file": map[string]interface{}{
					"type":        "string",
					"description": "Path to template file (alternative to inline template)",
				},
				"output_format": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"string", "json", "yaml"},
					"default":     "string",
					"description": "Output format for the rendered template",
				},
			},
			"oneOf": []map[string]interface{}{
				{"required": []string{"template"}},
				{"required": []string{"file"}},
			},
		},
		Examples: []Example{
			{
				Name:        "Simple greeting",
				Description: "Render a greeting message",
				Config: map[string]interface{}{
					"template": "Hello, {{.name}}! Your score is {{.score}}.",
				},
				Input: map[string]interface{}{
					"name":  "Alice",
					"score": 95,
				},
				Output: "Hello, Alice! Your score is 95.",
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a template node from a definition.
func (b *TemplateNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	templateStr, hasTemplate := def.Config["template"].(string)
	templateFile, hasFile := def.Config["file"].(string)

	if !hasTemplate && !hasFile {
		return nil, fmt.Errorf("either 'template' or 'file' must be specified")
	}

	outputFormat, _ := def.Config["output_format"].(string)
	if outputFormat == "" {
		outputFormat = "string"
	}

	var tmpl *template.Template
	var err error

	if hasTemplate {
		tmpl, err = template.New(def.Name).Parse(templateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid template: %w", err)
		}
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(_ context.Context, input any) (any, error) {
			execTemplate := tmpl
			if execTemplate == nil {
				content, err := os.ReadFile(templateFile) // #nosec G304 - template files are user-configured
				if err != nil {
					return nil, fmt.Errorf("failed to read template file: %w", err)
				}

				execTemplate, err = template.New(def.Name).Parse(string(content))
				if err != nil {
					return nil, fmt.Errorf("failed to parse template file: %w", err)
				}
			}

			var buf bytes.Buffer
			if err := execTemplate.Execute(&buf, input); err != nil {
				return nil, fmt.Errorf("template execution failed: %w", err)
			}

			result := buf.String()

			if b.Verbose {
				log.Printf("[%s] Rendered template: %s", def.Name, result)
			}

			switch outputFormat {
			case "json":
				var jsonData interface{}
				if err := json.Unmarshal([]byte(result), &jsonData); err != nil {
					return nil, fmt.Errorf("failed to parse JSON output: %w", err)
				}
				return jsonData, nil

			case "yaml":
				return map[string]interface{}{
					"yaml":   result,
					"format": "yaml",
				}, nil

			default: // "string"
				return result, nil
			}
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// HTTPNodeBuilder builds HTTP client nodes.
type HTTPNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *HTTPNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "http",
		Category:    "io",
		Description: "Makes HTTP requests with retry and timeout support",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "URL to request (supports templating)",
				},
				"method": map[string]interface{}{
					"type":    "string",
					"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
					"default": "GET",
				},
				"headers": map[string]interface{}{
					"type":        "object",
					"description": "HTTP headers",
				},
				"body": map[string]interface{}{
					"type":        []string{"string", "object"},
					"description": "Request body (for POST/PUT/PATCH)",
				},
				"timeout": map[string]interface{}{
					"type":        "string",
					"default":     "30s",
					"description": "Request timeout",
				},
				"retry": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"max_attempts": map[string]interface{}{"type": "integer", "default": 3},
						"delay":        map[string]interface{}{"type": "string", "default": "1s"},
					},
				},
			},
			"required": []string{"url"},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status":  map[string]interface{}{"type": "integer"},
				"headers": map[string]interface{}{"type": "object"},
				"body":    map[string]interface{}{"type": []string{"object", "string"}},
			},
		},
		Examples: []Example{
			{
				Name: "GET request",
				Config: map[string]interface{}{
					"url":    "https://api.example.com/data",
					"method": "GET",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates an HTTP node from a definition.
//
//nolint:gocyclo // Configuration parsing requires handling many options
func (b *HTTPNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	url, _ := def.Config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	method, _ := def.Config["method"].(string)
	if method == "" {
		method = "GET"
	}

	headers := make(map[string]string)
	if h, ok := def.Config["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			headers[k] = fmt.Sprint(v)
		}
	}

	body := def.Config["body"]

	timeoutStr, _ := def.Config["timeout"].(string)
	timeout, _ := time.ParseDuration(timeoutStr)
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxAttempts := 3
	retryDelay := time.Second
	if retry, ok := def.Config["retry"].(map[string]interface{}); ok {
		switch ma := retry["max_attempts"].(type) {
		case int:
			maxAttempts = ma
		case int64:
			maxAttempts = int(ma)
		case uint64:
			maxAttempts = int(ma)
		case float64:
			maxAttempts = int(ma)
		}
		if d, ok := retry["delay"].(string); ok {
			if pd, err := time.ParseDuration(d); err == nil {
				retryDelay = pd
			}
		}
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(ctx context.Context, input any) (any, error) {
			finalURL := url
			if strings.Contains(url, "{{") {
				tmpl, err := template.New("url").Parse(url)
				if err != nil {
					return nil, fmt.Errorf("invalid URL template: %w", err)
				}
				var buf bytes.Buffer
				if err := tmpl.Execute(&buf, input); err != nil {
					return nil, fmt.Errorf("URL template execution failed: %w", err)
				}
				finalURL = buf.String()
			}

			client := &http.Client{Timeout: timeout}

			var lastErr error
			for attempt := 0; attempt < maxAttempts; attempt++ {
				if attempt > 0 {
					if b.Verbose {
						log.Printf("[%s] Retry attempt %d/%d", def.Name, attempt+1, maxAttempts)
					}
					time.Sleep(retryDelay)
				}

				var bodyReader io.Reader
				if body != nil && method != "GET" && method != "DELETE" {
					switch v := body.(type) {
					case string:
						bodyReader = strings.NewReader(v)
					default:
						jsonBody, err := json.Marshal(v)
						if err != nil {
							return nil, fmt.Errorf("failed to marshal body: %w", err)
						}
						bodyReader = bytes.NewReader(jsonBody)
						if headers["Content-Type"] == "" {
							headers["Content-Type"] = "application/json"
						}
					}
				}

				req, err := http.NewRequestWithContext(ctx, method, finalURL, bodyReader)
				if err != nil {
					return nil, err
				}

				for k, v := range headers {
					req.Header.Set(k, v)
				}

				resp, err := client.Do(req)
				if err != nil {
					lastErr = err
					continue
				}

				respBody, err := io.ReadAll(resp.Body)
				closeErr := resp.Body.Close()
				if closeErr != nil && b.Verbose {
					log.Printf("[%s] Failed to close response body: %v", def.Name, closeErr)
				}
				if err != nil {
					lastErr = err
					continue
				}

				var bodyData interface{} = string(respBody)
				contentType := resp.Header.Get("Content-Type")
				if strings.Contains(contentType, "application/json") {
					var jsonData interface{}
					if err := json.Unmarshal(respBody, &jsonData); err == nil {
						bodyData = jsonData
					}
				}

				result := map[string]interface{}{
					"status":  resp.StatusCode,
					"headers": resp.Header,
					"body":    bodyData,
				}

				if b.Verbose {
					log.Printf("[%s] HTTP %s %s - Status: %d", def.Name, method, finalURL, resp.StatusCode)
				}

				if resp.StatusCode >= 500 && attempt < maxAttempts-1 {
					lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
					continue
				}

				return result, nil
			}

			return nil, fmt.Errorf("all attempts failed: %w", lastErr)
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// JSONPathNodeBuilder builds JSONPath extraction nodes.
type JSONPathNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *JSONPathNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "jsonpath",
		Category:    "data",
		Description: "Extracts data from JSON using JSONPath expressions",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "JSONPath expression to extract data",
				},
				"multiple": map[string]interface{}{
					"type":        "boolean",
					"default":     false,
					"description": "Return all matches as array (true) or first match only (false)",
				},
				"default": map[string]interface{}{
					"description": "Default value if path not found",
				},
				"unwrap": map[string]interface{}{
					"type":        "boolean",
					"default":     true,
					"description": "Unwrap single-element arrays",
				},
			},
			"required": []string{"path"},
		},
		OutputSchema: map[string]interface{}{
			"description": "Extracted value(s) from the JSONPath query",
		},
		Examples: []Example{
			{
				Name:        "Extract user name",
				Description: "Get user name from nested object",
				Config: map[string]interface{}{
					"path": "$.user.name",
				},
				Input: map[string]interface{}{
					"user": map[string]interface{}{"name": "Alice", "age": 30},
				},
				Output: "Alice",
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a JSONPath node from a definition.
func (b *JSONPathNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	pathStr, ok := def.Config["path"].(string)
	if !ok || pathStr == "" {
		return nil, fmt.Errorf("path is required")
	}

	expr, err := jp.ParseString(pathStr)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression: %w", err)
	}

	multiple, _ := def.Config["multiple"].(bool)
	defaultValue := def.Config["default"]
	unwrap := true
	if u, ok := def.Config["unwrap"].(bool); ok {
		unwrap = u
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(_ context.Context, input any) (any, error) {
			results := expr.Get(input)

			if b.Verbose {
				log.Printf("[%s] JSONPath '%s' found %d matches", def.Name, pathStr, len(results))
			}

			if len(results) == 0 {
				if defaultValue != nil {
					if b.Verbose {
						log.Printf("[%s] No matches, returning default value", def.Name)
					}
					return defaultValue, nil
				}
				if multiple {
					return []interface{}{}, nil
				}
				return nil, nil
			}

			if multiple {
				return results, nil
			}

			result := results[0]
			if unwrap {
				if arr, ok := result.([]interface{}); ok && len(arr) == 1 {
					result = arr[0]
				}
			}

			return result, nil
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// ValidateNodeBuilder builds JSON Schema validation nodes.
type ValidateNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *ValidateNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "validate",
		Category:    "data",
		Description: "Validates data against JSON Schema",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"schema": map[string]interface{}{
					"type":        "object",
					"description": "JSON Schema to validate against",
				},
				"schema_file": map[string]interface{}{
					"type":        "string",
					"description": "Path to JSON Schema file (alternative to inline schema)",
				},
				"fail_on_error": map[string]interface{}{
					"type":        "boolean",
					"default":     true,
					"description": "Return error on validation failure (true) or continue with validation result (false)",
				},
			},
			"oneOf": []map[string]interface{}{
				{"required": []string{"schema"}},
				{"required": []string{"schema_file"}},
			},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"valid":  map[string]interface{}{"type": "boolean"},
				"errors": map[string]interface{}{"type": "array"},
				"data":   map[string]interface{}{"description": "The original input data"},
			},
		},
		Examples: []Example{
			{
				Name:        "Validate user object",
				Description: "Ensure user data matches expected schema",
				Config: map[string]interface{}{
					"schema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":  map[string]interface{}{"type": "string"},
							"email": map[string]interface{}{"type": "string", "format": "email"},
						},
						"required": []string{"name", "email"},
					},
				},
				Input: map[string]interface{}{
					"name": "Alice", "email": "alice@example.com",
				},
				Output: map[string]interface{}{
					"valid":  true,
					"errors": []interface{}{},
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a validate node from a definition.
func (b *ValidateNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	schema, hasSchema := def.Config["schema"]
	schemaFile, hasFile := def.Config["schema_file"].(string)

	if !hasSchema && !hasFile {
		return nil, fmt.Errorf("either 'schema' or 'schema_file' must be specified")
	}

	failOnError := true
	if f, ok := def.Config["fail_on_error"].(bool); ok {
		failOnError = f
	}

	var schemaLoader gojsonschema.JSONLoader
	if hasSchema {
		schemaLoader = gojsonschema.NewGoLoader(schema)
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(_ context.Context, input any) (any, error) {
			var loader gojsonschema.JSONLoader
			if schemaLoader != nil {
				loader = schemaLoader
			} else {
				schemaContent, err := os.ReadFile(schemaFile) // #nosec G304 - schema files are user-configured
				if err != nil {
					return nil, fmt.Errorf("failed to read schema file: %w", err)
				}
				loader = gojsonschema.NewBytesLoader(schemaContent)
			}

			documentLoader := gojsonschema.NewGoLoader(input)

			result, err := gojsonschema.Validate(loader, documentLoader)
			if err != nil {
				return nil, fmt.Errorf("validation error: %w", err)
			}

			response := map[string]interface{}{
				"valid":  result.Valid(),
				"errors": []interface{}{},
				"data":   input,
			}

			if !result.Valid() {
				errs := []interface{}{}
				for _, e := range result.Errors() {
					errs = append(errs, map[string]interface{}{
						"field":       e.Field(),
						"type":        e.Type(),
						"description": e.Description(),
					})
				}
				response["errors"] = errs

				if b.Verbose {
					log.Printf("[%s] Validation failed with %d errors", def.Name, len(errs))
				}
			} else if b.Verbose {
				log.Printf("[%s] Validation passed", def.Name)
			}

			if !result.Valid() && failOnError {
				return response, fmt.Errorf("validation failed: %d errors", len(result.Errors()))
			}

			return response, nil
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// AggregateNodeBuilder builds data aggregation nodes.
type AggregateNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *AggregateNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "aggregate",
		Category:    "data",
		Description: "Collects and combines data from multiple inputs",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"array", "object", "merge", "concat"},
					"default":     "array",
					"description": "How to aggregate inputs: array (collect all), object (key-value pairs), merge (deep merge objects), concat (concatenate arrays)",
				},
				"key": map[string]interface{}{
					"type":        "string",
					"description": "Key to use for object mode (supports templates)",
				},
			},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"data":     map[string]interface{}{"description": "Aggregated data (array, object, or merged result)"},
				"count":    map[string]interface{}{"type": "integer"},
				"complete": map[string]interface{}{"type": "boolean"},
			},
		},
		Examples: []Example{
			{
				Name:        "Collect array of results",
				Description: "Aggregate multiple inputs into an array",
				Config: map[string]interface{}{
					"mode": "array",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates an aggregate node from a definition.
func (b *AggregateNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	mode, _ := def.Config["mode"].(string)
	if mode == "" {
		mode = "array"
	}

	keyTemplate, _ := def.Config["key"].(string)

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(_ context.Context, input any) (any, error) {
			var items []interface{}

			switch v := input.(type) {
			case []interface{}:
				items = v
			case map[string]interface{}:
				if data, ok := v["data"].([]interface{}); ok {
					items = data
				} else {
					items = []interface{}{v}
				}
			default:
				items = []interface{}{input}
			}

			if b.Verbose {
				log.Printf("[%s] Aggregating %d items in %s mode", def.Name, len(items), mode)
			}

			var result interface{}
			switch mode {
			case "array":
				result = items

			case "object":
				obj := make(map[string]interface{})
				for i, item := range items {
					key := fmt.Sprintf("item_%d", i)
					if keyTemplate != "" {
						tmpl, err := template.New("key").Parse(keyTemplate)
						if err == nil {
							var buf bytes.Buffer
							if err := tmpl.Execute(&buf, item); err == nil {
								key = buf.String()
							}
						}
					}
					obj[key] = item
				}
				result = obj

			case "merge":
				merged := make(map[string]interface{})
				for _, item := range items {
					if m, ok := item.(map[string]interface{}); ok {
						merged = deepMerge(merged, m)
					}
				}
				result = merged

			case "concat":
				var concatenated []interface{}
				for _, item := range items {
					if arr, ok := item.([]interface{}); ok {
						concatenated = append(concatenated, arr...)
					} else {
						concatenated = append(concatenated, item)
					}
				}
				result = concatenated

			default:
				return nil, fmt.Errorf("unknown aggregation mode: %s", mode)
			}

			return map[string]interface{}{
				"data":     result,
				"count":    len(items),
				"complete": true,
			}, nil
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// deepMerge recursively merges two maps.
func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	for key, srcVal := range src {
		if dstVal, exists := dst[key]; exists {
			if srcMap, srcOk := srcVal.(map[string]interface{}); srcOk {
				if dstMap, dstOk := dstVal.(map[string]interface{}); dstOk {
					dst[key] = deepMerge(dstMap, srcMap)
					continue
				}
			}
		}
		dst[key] = srcVal
	}
	return dst
}

// FileNodeBuilder builds file I/O nodes with sandboxing.
type FileNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *FileNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "file",
		Category:    "io",
		Description: "Reads or writes files with path restrictions",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"operation": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"read", "write", "append", "exists", "list"},
					"default":     "read",
					"description": "File operation to perform",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File path (relative to working directory or absolute if allowed)",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Content to write (for write/append operations)",
				},
				"base_dir": map[string]interface{}{
					"type":        "string",
					"description": "Base directory for sandboxing (defaults to current working directory)",
				},
				"allow_absolute": map[string]interface{}{
					"type":        "boolean",
					"default":     false,
					"description": "Allow absolute paths outside base directory",
				},
				"create_dirs": map[string]interface{}{
					"type":        "boolean",
					"default":     false,
					"description": "Create parent directories if they don't exist",
				},
			},
			"required": []string{"operation", "path"},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":     map[string]interface{}{"type": "string"},
				"exists":   map[string]interface{}{"type": "boolean"},
				"content":  map[string]interface{}{"type": "string"},
				"size":     map[string]interface{}{"type": "integer"},
				"modified": map[string]interface{}{"type": "string", "format": "date-time"},
			},
		},
		Examples: []Example{
			{
				Name:        "Read file",
				Description: "Read contents of a text file",
				Config: map[string]interface{}{
					"operation": "read",
					"path":      "config.json",
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates a file node from a definition.
//
//nolint:gocyclo // Complex due to multiple operations (read/write/append/list) and security validations
func (b *FileNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	operation, _ := def.Config["operation"].(string)
	if operation == "" {
		operation = "read"
	}

	pathStr, ok := def.Config["path"].(string)
	if !ok || pathStr == "" {
		return nil, fmt.Errorf("path is required")
	}

	content, _ := def.Config["content"].(string)

	baseDir, _ := def.Config["base_dir"].(string)
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	allowAbsolute, _ := def.Config["allow_absolute"].(bool)
	createDirs, _ := def.Config["create_dirs"].(bool)

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(_ context.Context, input any) (any, error) {
			resolvedPath, err := resolvePath(pathStr, baseDir, allowAbsolute)
			if err != nil {
				return nil, fmt.Errorf("path resolution failed: %w", err)
			}

			if b.Verbose {
				log.Printf("[%s] File operation '%s' on path: %s", def.Name, operation, resolvedPath)
			}

			switch operation {
			case "read":
				data, err := os.ReadFile(resolvedPath) // #nosec G304 - path is validated and sandboxed
				if err != nil {
					if os.IsNotExist(err) {
						return map[string]interface{}{"path": resolvedPath, "exists": false}, nil
					}
					return nil, fmt.Errorf("read failed: %w", err)
				}

				info, _ := os.Stat(resolvedPath)
				return map[string]interface{}{
					"path":     resolvedPath,
					"exists":   true,
					"content":  string(data),
					"size":     info.Size(),
					"modified": info.ModTime().Format(time.RFC3339),
				}, nil

			case "write":
				if createDirs {
					dir := filepath.Dir(resolvedPath)
					if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // standard directory permissions
						return nil, fmt.Errorf("failed to create directories: %w", err)
					}
				}

				finalContent := content
				if strings.Contains(content, "{{") {
					tmpl, err := template.New("content").Parse(content)
					if err == nil {
						var buf bytes.Buffer
						if err := tmpl.Execute(&buf, input); err == nil {
							finalContent = buf.String()
						}
					}
				}

				if err := os.WriteFile(resolvedPath, []byte(finalContent), 0o644); err != nil { //nolint:gosec // standard file permissions
					return nil, fmt.Errorf("write failed: %w", err)
				}

				info, _ := os.Stat(resolvedPath)
				return map[string]interface{}{
					"path":     resolvedPath,
					"exists":   true,
					"size":     info.Size(),
					"modified": info.ModTime().Format(time.RFC3339),
				}, nil

			case "append":
				if createDirs {
					dir := filepath.Dir(resolvedPath)
					if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // standard directory permissions
						return nil, fmt.Errorf("failed to create directories: %w", err)
					}
				}

				finalContent := content
				if strings.Contains(content, "{{") {
					tmpl, err := template.New("content").Parse(content)
					if err == nil {
						var buf bytes.Buffer
						if err := tmpl.Execute(&buf, input); err == nil {
							finalContent = buf.String()
						}
					}
				}

				file, err := os.OpenFile(resolvedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302,G304 - path is validated and sandboxed
				if err != nil {
					return nil, fmt.Errorf("append failed: %w", err)
				}
				defer func() { _ = file.Close() }()

				if _, err := file.WriteString(finalContent); err != nil {
					return nil, fmt.Errorf("append write failed: %w", err)
				}

				info, _ := os.Stat(resolvedPath)
				return map[string]interface{}{
					"path":     resolvedPath,
					"exists":   true,
					"size":     info.Size(),
					"modified": info.ModTime().Format(time.RFC3339),
				}, nil

			case "exists":
				info, err := os.Stat(resolvedPath)
				if err != nil {
					if os.IsNotExist(err) {
						return map[string]interface{}{"path": resolvedPath, "exists": false}, nil
					}
					return nil, fmt.Errorf("stat failed: %w", err)
				}

				return map[string]interface{}{
					"path":     resolvedPath,
					"exists":   true,
					"size":     info.Size(),
					"modified": info.ModTime().Format(time.RFC3339),
					"isDir":    info.IsDir(),
				}, nil

			case "list":
				entries, err := os.ReadDir(resolvedPath)
				if err != nil {
					if os.IsNotExist(err) {
						return map[string]interface{}{"path": resolvedPath, "exists": false}, nil
					}
					return nil, fmt.Errorf("list failed: %w", err)
				}

				files := []interface{}{}
				for _, entry := range entries {
					info, err := entry.Info()
					if err != nil {
						continue
					}

					files = append(files, map[string]interface{}{
						"name":     entry.Name(),
						"path":     filepath.Join(resolvedPath, entry.Name()),
						"size":     info.Size(),
						"modified": info.ModTime().Format(time.RFC3339),
						"isDir":    entry.IsDir(),
					})
				}

				return map[string]interface{}{"path": resolvedPath, "exists": true, "files": files}, nil

			default:
				return nil, fmt.Errorf("unknown operation: %s", operation)
			}
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// resolvePath resolves a file path with sandboxing.
func resolvePath(path, baseDir string, allowAbsolute bool) (string, error) {
	cleanPath := filepath.Clean(path)

	if allowAbsolute && filepath.IsAbs(cleanPath) {
		return cleanPath, nil
	}

	resolvedPath := filepath.Join(baseDir, cleanPath)
	absPath, err := filepath.Abs(resolvedPath)
	if err != nil {
		return "", err
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}

	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path '%s' is outside base directory", path)
	}

	return absPath, nil
}

// ExecNodeBuilder builds command execution nodes.
type ExecNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *ExecNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "exec",
		Category:    "io",
		Description: "Executes shell commands with restrictions",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Command to execute",
				},
				"args": map[string]interface{}{
					"type":        "array",
					"description": "Command arguments",
					"items":       map[string]interface{}{"type": "string"},
				},
				"timeout": map[string]interface{}{
					"type":        "string",
					"description": "Execution timeout",
					"default":     "30s",
				},
				"allowed_commands": map[string]interface{}{
					"type":        "array",
					"description": "List of allowed commands (whitelist)",
					"items":       map[string]interface{}{"type": "string"},
				},
				"env": map[string]interface{}{
					"type":                 "object",
					"description":          "Environment variables to set",
					"additionalProperties": map[string]interface{}{"type": "string"},
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory for command",
				},
				"capture_output": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether to capture command output",
					"default":     true,
				},
			},
			"required": []string{"command"},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"stdout":    map[string]interface{}{"type": "string"},
				"stderr":    map[string]interface{}{"type": "string"},
				"exit_code": map[string]interface{}{"type": "integer"},
				"duration":  map[string]interface{}{"type": "string"},
			},
		},
		Examples: []Example{
			{
				Name:        "List files",
				Description: "List files in current directory",
				Config: map[string]interface{}{
					"command": "ls",
					"args":    []interface{}{"-la"},
				},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates an exec node from a definition.
//
//nolint:gocyclo // Complex due to security validations, restrictions, and error handling
func (b *ExecNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	command, ok := def.Config["command"].(string)
	if !ok || command == "" {
		return nil, fmt.Errorf("command is required")
	}

	var args []string
	if argsRaw, ok := def.Config["args"].([]interface{}); ok {
		for i, arg := range argsRaw {
			argStr, ok := arg.(string)
			if !ok {
				return nil, fmt.Errorf("argument %d must be a string", i)
			}
			args = append(args, argStr)
		}
	}

	timeoutStr, _ := def.Config["timeout"].(string)
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	var allowedCommands []string
	if allowed, ok := def.Config["allowed_commands"].([]interface{}); ok {
		for _, cmd := range allowed {
			if cmdStr, ok := cmd.(string); ok {
				allowedCommands = append(allowedCommands, cmdStr)
			}
		}
	}

	env := make(map[string]string)
	if envMap, ok := def.Config["env"].(map[string]interface{}); ok {
		for k, v := range envMap {
			if vStr, ok := v.(string); ok {
				env[k] = vStr
			}
		}
	}

	workingDir, _ := def.Config["working_dir"].(string)

	captureOutput := true
	if capture, ok := def.Config["capture_output"].(bool); ok {
		captureOutput = capture
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(ctx context.Context, input any) (any, error) {
			if len(allowedCommands) > 0 {
				allowed := false
				for _, allowedCmd := range allowedCommands {
					if command == allowedCmd {
						allowed = true
						break
					}
				}
				if !allowed {
					return nil, fmt.Errorf("command '%s' is not in allowed list", command)
				}
			}

			execCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, command, args...) // #nosec G204 - command is user-configured with restrictions

			if workingDir != "" {
				cmd.Dir = workingDir
			}

			if len(env) > 0 {
				cmd.Env = os.Environ()
				for k, v := range env {
					cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
				}
			}

			var stdout, stderr bytes.Buffer
			if captureOutput {
				cmd.Stdout = &stdout
				cmd.Stderr = &stderr
			}

			startTime := time.Now()
			runErr := cmd.Run()
			duration := time.Since(startTime)

			exitCode := 0
			if runErr != nil {
				if exitErr, ok := runErr.(*exec.ExitError); ok {
					exitCode = exitErr.ExitCode()
					if execCtx.Err() == context.DeadlineExceeded {
						return nil, fmt.Errorf("command timed out after %v", timeout)
					}
				} else if execCtx.Err() == context.DeadlineExceeded {
					return nil, fmt.Errorf("command timed out after %v", timeout)
				} else {
					return nil, fmt.Errorf("command failed: %w", runErr)
				}
			}

			if b.Verbose {
				log.Printf("[%s] Command executed: %s %v (exit: %d, duration: %v)",
					def.Name, command, args, exitCode, duration)
			}

			result := map[string]interface{}{
				"command":   command,
				"args":      args,
				"exit_code": exitCode,
				"duration":  duration.String(),
			}

			if captureOutput {
				result["stdout"] = stdout.String()
				result["stderr"] = stderr.String()
			}

			return result, nil
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// ParallelNodeBuilder builds parallel execution nodes.
type ParallelNodeBuilder struct {
	Verbose bool
}

// Metadata returns the node metadata.
func (b *ParallelNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "parallel",
		Category:    "flow",
		Description: "Executes multiple operations in parallel",
		ConfigSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tasks": map[string]interface{}{
					"type":        "array",
					"description": "List of tasks to execute in parallel",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":      map[string]interface{}{"type": "string", "description": "Task name"},
							"operation": map[string]interface{}{"type": "string", "description": "Operation to perform"},
							"config":    map[string]interface{}{"type": "object", "description": "Task-specific configuration"},
						},
						"required": []string{"name", "operation"},
					},
				},
				"max_concurrency": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of concurrent tasks",
					"minimum":     1,
					"default":     10,
				},
				"fail_fast": map[string]interface{}{
					"type":        "boolean",
					"description": "Stop all tasks if one fails",
					"default":     false,
				},
				"timeout": map[string]interface{}{
					"type":        "string",
					"description": "Overall timeout for all tasks",
					"default":     "5m",
				},
			},
			"required": []string{"tasks"},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"results":  map[string]interface{}{"type": "array", "description": "Results from all tasks"},
				"errors":   map[string]interface{}{"type": "array", "description": "Errors from failed tasks"},
				"duration": map[string]interface{}{"type": "string", "description": "Total execution time"},
			},
		},
		Examples: []Example{
			{
				Name:        "Parallel API calls",
				Description: "Fetch data from multiple APIs concurrently",
				Config: map[string]interface{}{
					"tasks": []interface{}{
						map[string]interface{}{
							"name":      "fetch_users",
							"operation": "http_get",
							"config":    map[string]interface{}{"url": "https://api.example.com/users"},
						},
					},
					"max_concurrency": 5,
				},
			},
		},
		Since: "1.0.0",
	}
}

// parallelTask is one unit of work configured on a parallel node.
type parallelTask struct {
	Name      string
	Operation string
	Config    map[string]interface{}
}

// Build creates a parallel node from a definition.
//
//nolint:gocyclo // Complex due to concurrent execution handling and error aggregation
func (b *ParallelNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	tasksRaw, ok := def.Config["tasks"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("tasks must be an array")
	}

	tasks := make([]parallelTask, 0, len(tasksRaw))
	for i, taskRaw := range tasksRaw {
		taskMap, ok := taskRaw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("task %d must be an object", i)
		}

		name, ok := taskMap["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("task %d missing name", i)
		}

		operation, ok := taskMap["operation"].(string)
		if !ok || operation == "" {
			return nil, fmt.Errorf("task %d missing operation", i)
		}

		config, _ := taskMap["config"].(map[string]interface{})

		tasks = append(tasks, parallelTask{Name: name, Operation: operation, Config: config})
	}

	maxConcurrency := 10
	switch mc := def.Config["max_concurrency"].(type) {
	case int:
		maxConcurrency = mc
	case int64:
		maxConcurrency = int(mc)
	case uint64:
		maxConcurrency = int(mc)
	case float64:
		maxConcurrency = int(mc)
	}

	failFast := false
	if ff, ok := def.Config["fail_fast"].(bool); ok {
		failFast = ff
	}

	timeoutStr, _ := def.Config["timeout"].(string)
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return loom.NewNode(def.Name,
		loom.WithPrep(readInput),
		loom.WithExec(func(ctx context.Context, input any) (any, error) {
			execCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			startTime := time.Now()
			sem := make(chan struct{}, maxConcurrency)

			type taskResult struct {
				Name   string
				Result interface{}
				Error  error
			}

			resultsChan := make(chan taskResult, len(tasks))

			var errChan chan error
			if failFast {
				errChan = make(chan error, 1)
			}

			var wg sync.WaitGroup
			for _, task := range tasks {
				wg.Add(1)

				task := task
				go func() {
					defer wg.Done()

					select {
					case sem <- struct{}{}:
						defer func() { <-sem }()
					case <-execCtx.Done():
						resultsChan <- taskResult{Name: task.Name, Error: fmt.Errorf("timeout waiting for concurrency slot")}
						return
					}

					if failFast {
						select {
						case <-execCtx.Done():
							return
						default:
						}
					}

					result, err := executeTask(execCtx, task, input)

					resultsChan <- taskResult{Name: task.Name, Result: result, Error: err}

					if failFast && err != nil {
						select {
						case errChan <- err:
							cancel()
						default:
						}
					}
				}()
			}

			go func() {
				wg.Wait()
				close(resultsChan)
			}()

			var results []interface{}
			var errs []interface{}
			resultMap := make(map[string]interface{})

			for res := range resultsChan {
				if res.Error != nil {
					errs = append(errs, map[string]interface{}{"task": res.Name, "error": res.Error.Error()})
					if b.Verbose {
						log.Printf("[%s] Task %s failed: %v", def.Name, res.Name, res.Error)
					}
				} else {
					results = append(results, map[string]interface{}{"task": res.Name, "result": res.Result})
					resultMap[res.Name] = res.Result
					if b.Verbose {
						log.Printf("[%s] Task %s completed successfully", def.Name, res.Name)
					}
				}
			}

			duration := time.Since(startTime)

			if failFast && len(errs) > 0 {
				return nil, fmt.Errorf("parallel execution failed (fail-fast): %d errors", len(errs))
			}

			if b.Verbose {
				log.Printf("[%s] Parallel execution completed: %d successful, %d failed, duration: %v",
					def.Name, len(results), len(errs), duration)
			}

			return map[string]interface{}{
				"results":  results,
				"errors":   errs,
				"duration": duration.String(),
				"summary": map[string]interface{}{
					"total":      len(tasks),
					"successful": len(results),
					"failed":     len(errs),
				},
			}, nil
		}),
		loom.WithPost(writeResultDefault),
	), nil
}

// executeTask simulates task execution for operations a parallel node
// doesn't delegate to a real builder; real deployments would instead route
// each task through the registry and call the resulting node's Visit.
func executeTask(_ context.Context, task parallelTask, input interface{}) (interface{}, error) {
	switch task.Operation {
	case "http_get":
		time.Sleep(100 * time.Millisecond)
		return map[string]interface{}{"status": 200, "data": fmt.Sprintf("Data from %s", task.Name)}, nil

	case "transform":
		time.Sleep(50 * time.Millisecond)
		return map[string]interface{}{"transformed": true, "task": task.Name, "input": input}, nil

	case "error":
		return nil, fmt.Errorf("simulated error for task %s", task.Name)

	default:
		return map[string]interface{}{"task": task.Name, "operation": task.Operation, "input": input}, nil
	}
}
