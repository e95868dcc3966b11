package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/loomkit/loom/builtin"
	pluginloader "github.com/loomkit/loom/plugin/loader"
	"github.com/loomkit/loom/yaml"
)

// RunConfig holds configuration for the run command.
type RunConfig struct {
	FilePath string
	Verbose  bool
	DryRun   bool
	Input    string
}

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run <file.yaml>",
	Short: "Execute a flow from a YAML file",
	Long: `Load a flow definition from a YAML file and run it.

The flow's nodes, successor wiring, and per-node config all come from the
file; shared state starts out empty except for an optional "input" value.`,
	Example: `  # Run a flow
  loom run flow.yaml

  # Validate without executing
  loom run flow.yaml --dry-run

  # Seed shared state's "input" key with a JSON value
  loom run flow.yaml --input '{"name": "Alice"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		input, _ := cmd.Flags().GetString("input")

		config := &RunConfig{
			FilePath: args[0],
			Verbose:  verbose,
			DryRun:   dryRun,
			Input:    input,
		}

		return runWorkflow(config)
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Validate the flow without executing it")
	runCmd.Flags().String("input", "", "JSON value to seed shared state's \"input\" key with")
}

// runWorkflow executes a flow from a YAML file.
func runWorkflow(config *RunConfig) error {
	filePath, err := expandPath(config.FilePath)
	if err != nil {
		return fmt.Errorf("expand path: %w", err)
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("get absolute path: %w", err)
	}

	if config.Verbose {
		log.Printf("Loading flow from: %s", absPath)
	}

	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", config.FilePath)
		}
		return fmt.Errorf("access file: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 - user-provided flow file
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var flowDef yaml.FlowDefinition
	if err := goyaml.Unmarshal(data, &flowDef); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	if err := flowDef.Validate(); err != nil {
		return fmt.Errorf("invalid flow: %w", err)
	}

	if config.Verbose {
		log.Printf("Loaded flow: %s", flowDef.Name)
		if flowDef.Description != "" {
			log.Printf("Description: %s", flowDef.Description)
		}
		log.Printf("Nodes: %d", len(flowDef.Nodes))
		log.Printf("Connections: %d", len(flowDef.Connections))
	}

	if config.DryRun {
		fmt.Println("Flow validation successful (dry run)")
		return nil
	}

	loader := yaml.NewLoader()
	builtin.RegisterAll(loader, config.Verbose)

	loadedPlugins, err := registerPlugins(loader, pluginloader.New(), config.Verbose)
	if err != nil {
		return fmt.Errorf("register plugins: %w", err)
	}
	defer closePlugins(loadedPlugins)

	flow, err := loader.LoadDefinition(&flowDef)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}

	if config.Verbose {
		log.Println("Starting flow execution...")
	}

	shared := loomNewSharedStateWithInput(config.Input)

	ctx := context.Background()

	start := time.Now()
	action, err := flow.Run(ctx, shared)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("flow execution failed: %w", err)
	}

	if config.Verbose {
		log.Printf("Flow completed in %v, final action: %s", duration, action)
	}

	result, ok := shared.Get("input")
	if ok && result != nil {
		out, err := goyaml.Marshal(result)
		if err != nil {
			fmt.Println(result)
		} else {
			fmt.Println(string(out))
		}
	}

	return nil
}
