package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/syndesi/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check node config files",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		role  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a commented config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], role, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", role, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", config.RoleDevice, "Template role (host|device)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Load a config file and report problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfigFile(cmd.OutOrStdout(), args[0])
		},
	}
}

func validateConfigFile(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if isTOML(path) {
		notes, err := tomlNotes(path)
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Fprintf(w, "note: %s\n", n)
		}
	}
	fmt.Fprintf(w, "ok: role=%s id=%s port=%d max_hops=%d\n",
		cfg.Node.Role, cfg.Node.ID, cfg.Network.Port, cfg.Network.MaxHops)
	return nil
}

// tomlNotes reports keys the node ignores and settings left to defaults
// that change between runs.
func tomlNotes(path string) ([]string, error) {
	var raw config.Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var notes []string
	for _, key := range meta.Undecoded() {
		notes = append(notes, fmt.Sprintf("unknown key %q is ignored", key.String()))
	}
	if !meta.IsDefined("node", "id") || strings.TrimSpace(raw.Node.ID) == "" {
		notes = append(notes, "node.id is not set; a random id is generated at every start")
	}
	if meta.IsDefined("serial", "device") && !meta.IsDefined("serial", "kind") {
		notes = append(notes, "serial.kind is not set; defaulting to uart")
	}
	return notes, nil
}

func isTOML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return false
	default:
		return true
	}
}
