package main

import (
	"context"
	"fmt"
	"log"

	"github.com/loomkit/loom/plugin"
	"github.com/loomkit/loom/plugin/wasm"
	"github.com/loomkit/loom/yaml"
)

// registerPlugins discovers installed plugins via pluginLoader and
// registers every node type they export with yamlLoader, the same way
// builtin.RegisterAll registers loom's built-in nodes — so a flow YAML
// file can reference a plugin's node type exactly like "echo" or
// "transform". It returns the loaded plugins so the caller can Close
// them once done with the flow.
//
// pluginLoader is a parameter rather than loader.New() called here
// directly so tests can supply a fake plugin.Loader instead of
// discovering real WASM binaries from disk.
func registerPlugins(yamlLoader *yaml.Loader, pluginLoader plugin.Loader, verbose bool) ([]plugin.Plugin, error) {
	metadatas, err := pluginLoader.Discover()
	if err != nil {
		return nil, fmt.Errorf("discover plugins: %w", err)
	}

	ctx := context.Background()
	var loaded []plugin.Plugin

	for _, meta := range metadatas {
		p, err := pluginLoader.LoadFromMetadata(ctx, meta)
		if err != nil {
			log.Printf("skipping plugin %q: %v", meta.Name, err)
			continue
		}
		loaded = append(loaded, p)

		for _, nodeDef := range meta.Nodes {
			builder := wasm.NewPluginNodeBuilder(p, nodeDef)
			yamlLoader.RegisterNodeType(nodeDef.Type, builder.Build)
			if verbose {
				log.Printf("Registered plugin node type %q from plugin %q", nodeDef.Type, meta.Name)
			}
		}
	}

	return loaded, nil
}

// closePlugins releases every plugin's resources, logging (rather than
// failing the run) on individual close errors.
func closePlugins(plugins []plugin.Plugin) {
	ctx := context.Background()
	for _, p := range plugins {
		if err := p.Close(ctx); err != nil {
			log.Printf("failed to close plugin %q: %v", p.Metadata().Name, err)
		}
	}
}
