package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/configs"
	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/errors"
)

// mcpServerEntry is one server in a client's .mcp.json.
type mcpServerEntry struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// mcpFile is the root .mcp.json structure MCP clients read.
type mcpFile struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		force bool
		user  bool
		noMCP bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write starter configuration for this project",
		Long: `Create a commented .steward.yaml in the current directory and register
steward in .mcp.json so MCP clients pick the server up.

--user writes the machine-level config (~/.steward/config.yaml)
instead: settings that apply to every contract on this machine, like
the API key variable name and the data directory.`,
		Example: `  steward init
  steward init --user
  steward init --force      # overwrite an existing config`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user {
				return runInitUser(cmd, force)
			}
			return runInitProject(cmd, force, noMCP)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&user, "user", false, "Write the machine-level config instead")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Skip .mcp.json registration")

	return cmd
}

func runInitProject(cmd *cobra.Command, force, noMCP bool) error {
	w := cmd.OutOrStdout()

	path := ".steward.yaml"
	if fileAlreadyThere(path) && !force {
		return errors.ValidationError(".steward.yaml already exists", nil).
			WithSuggestion("use --force to overwrite")
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return errors.StorageError("cannot write .steward.yaml", err)
	}
	fmt.Fprintf(w, "Wrote %s\n", path)

	if !noMCP {
		if err := registerMCPServer(force); err != nil {
			return err
		}
		fmt.Fprintln(w, "Registered steward in .mcp.json")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next: steward ingest <contract.md>")
	return nil
}

func runInitUser(cmd *cobra.Command, force bool) error {
	path := config.GetUserConfigPath()
	if fileAlreadyThere(path) && !force {
		return errors.ValidationError(fmt.Sprintf("%s already exists", path), nil).
			WithSuggestion("use --force to overwrite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.StorageError("cannot create config directory", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return errors.StorageError("cannot write user config", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

// registerMCPServer adds or updates the steward entry in .mcp.json,
// preserving any other servers already registered there.
func registerMCPServer(force bool) error {
	var doc mcpFile
	if data, err := os.ReadFile(".mcp.json"); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return errors.ValidationError(".mcp.json exists but is not valid JSON", err).
				WithSuggestion("fix or remove it, or re-run with --no-mcp")
		}
		if _, exists := doc.MCPServers["steward"]; exists && !force {
			return nil
		}
	}
	if doc.MCPServers == nil {
		doc.MCPServers = make(map[string]mcpServerEntry)
	}

	doc.MCPServers["steward"] = mcpServerEntry{
		Type:    "stdio",
		Command: "steward",
		Args:    []string{"serve"},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.InternalError("cannot encode .mcp.json", err)
	}
	if err := os.WriteFile(".mcp.json", append(data, '\n'), 0o644); err != nil {
		return errors.StorageError("cannot write .mcp.json", err)
	}
	return nil
}

func fileAlreadyThere(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
