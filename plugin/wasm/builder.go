package wasm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/builtin"
	"github.com/loomkit/loom/plugin"
	"github.com/loomkit/loom/yaml"
)

// PluginNodeBuilder creates loom nodes from WASM plugins.
type PluginNodeBuilder struct {
	plugin   plugin.Plugin
	nodeType plugin.NodeDefinition
}

// NewPluginNodeBuilder creates a new builder for a specific node type in a plugin.
func NewPluginNodeBuilder(p plugin.Plugin, nodeType plugin.NodeDefinition) *PluginNodeBuilder {
	return &PluginNodeBuilder{
		plugin:   p,
		nodeType: nodeType,
	}
}

// Metadata returns the node metadata.
func (b *PluginNodeBuilder) Metadata() builtin.NodeMetadata {
	return builtin.NodeMetadata{
		Type:         b.nodeType.Type,
		Category:     b.nodeType.Category,
		Description:  b.nodeType.Description,
		ConfigSchema: b.nodeType.ConfigSchema,
		Examples:     convertExamples(b.nodeType.Examples),
		Since:        b.plugin.Metadata().Version,
	}
}

// Build creates a new node instance that proxies prep/exec/post to the
// WASM plugin's exported functions.
func (b *PluginNodeBuilder) Build(def *yaml.NodeDefinition) (loom.Node, error) {
	return loom.NewNode(def.Name,
		loom.WithPrep(b.prepFunc(def)),
		loom.WithExec(b.execFunc(def)),
		loom.WithPost(b.postFunc(def)),
	), nil
}

// prepFunc creates the prep function for the node.
func (b *PluginNodeBuilder) prepFunc(def *yaml.NodeDefinition) loom.PrepFunc {
	return func(ctx context.Context, shared *loom.SharedState) (any, error) {
		input, _ := shared.Get("input")

		inputJSON, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal input: %w", err)
		}

		req := plugin.Request{
			Node:     b.nodeType.Type,
			Function: "prep",
			Config:   def.Config,
			Input:    inputJSON,
		}

		reqJSON, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		respJSON, err := b.plugin.Call(ctx, "prep", reqJSON)
		if err != nil {
			return nil, fmt.Errorf("plugin prep failed: %w", err)
		}

		var resp plugin.Response
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		if !resp.Success {
			return nil, fmt.Errorf("plugin prep error: %s", resp.Error)
		}

		var output any
		if len(resp.Output) > 0 {
			if err := json.Unmarshal(resp.Output, &output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal output: %w", err)
			}
		}

		return output, nil
	}
}

// execFunc creates the exec function for the node.
func (b *PluginNodeBuilder) execFunc(def *yaml.NodeDefinition) loom.ExecFunc {
	return func(ctx context.Context, prepResult any) (any, error) {
		prepJSON, err := json.Marshal(prepResult)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal prep data: %w", err)
		}

		req := plugin.Request{
			Node:       b.nodeType.Type,
			Function:   "exec",
			Config:     def.Config,
			PrepResult: prepJSON,
		}

		reqJSON, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		respJSON, err := b.plugin.Call(ctx, "exec", reqJSON)
		if err != nil {
			return nil, fmt.Errorf("plugin exec failed: %w", err)
		}

		var resp plugin.Response
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		if !resp.Success {
			return nil, fmt.Errorf("plugin exec error: %s", resp.Error)
		}

		var output any
		if len(resp.Output) > 0 {
			if err := json.Unmarshal(resp.Output, &output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal output: %w", err)
			}
		}

		return output, nil
	}
}

// postFunc creates the post function for the node.
func (b *PluginNodeBuilder) postFunc(def *yaml.NodeDefinition) loom.PostFunc {
	return func(ctx context.Context, shared *loom.SharedState, prepResult, execResult any) (string, error) {
		input, _ := shared.Get("input")
		inputJSON, _ := json.Marshal(input)
		prepJSON, _ := json.Marshal(prepResult)
		execJSON, _ := json.Marshal(execResult)

		req := plugin.Request{
			Node:       b.nodeType.Type,
			Function:   "post",
			Config:     def.Config,
			Input:      inputJSON,
			PrepResult: prepJSON,
			ExecResult: execJSON,
		}

		reqJSON, err := json.Marshal(req)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		respJSON, err := b.plugin.Call(ctx, "post", reqJSON)
		if err != nil {
			return "", fmt.Errorf("plugin post failed: %w", err)
		}

		var resp plugin.Response
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}

		if !resp.Success {
			return "", fmt.Errorf("plugin post error: %s", resp.Error)
		}

		var output any
		if len(resp.Output) > 0 {
			if err := json.Unmarshal(resp.Output, &output); err != nil {
				return "", fmt.Errorf("failed to unmarshal output: %w", err)
			}
		}
		shared.Set("input", output)

		next := resp.Next
		if next == "" {
			next = "default"
		}

		return next, nil
	}
}

// convertExamples converts plugin examples to builtin examples.
func convertExamples(examples []plugin.Example) []builtin.Example {
	result := make([]builtin.Example, len(examples))
	for i, ex := range examples {
		result[i] = builtin.Example{
			Name:        ex.Name,
			Description: ex.Description,
			Config:      ex.Config,
		}
	}
	return result
}
