package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/pagelens/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configPrintCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configPrintCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:     "print",
		Aliases: []string{"show"},
		Short:   "Display the effective configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg.MaskedCopy(), asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	return cmd
}

func printConfig(out io.Writer, cfg *config.Config, asYAML bool) error {
	if asYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := config.Load(cfgPath); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config at %s is valid.\n", cfgPath)
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if !force && fileExists(cfgPath) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
