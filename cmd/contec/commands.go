package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/contec/internal/auth"
	"github.com/kalambet/contec/internal/config"
)

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.Source+", $"+k.EnvVar+")"))
		}
		fmt.Fprintf(out, "  config file: %s\n", config.ConfigPath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// --- passwd ---

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Hash a trainer password with bcrypt",
	Long: `Prompt for a trainer password and print its bcrypt hash.

Use the hash as CONTEC_TRAINER_PASSWORD, or pass --save to store it in the
secrets file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetBool("save")

		pw, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if pw == "" {
			return fmt.Errorf("password must not be empty")
		}

		hash, err := auth.HashPassword(pw)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		if save {
			if err := config.SetTrainerPassword(hash); err != nil {
				return fmt.Errorf("saving password: %w", err)
			}
			printSuccess("Trainer password saved to %s", config.SecretsPath())
			if os.Getenv("CONTEC_TRAINER_PASSWORD") != "" {
				printWarning("CONTEC_TRAINER_PASSWORD is set and takes precedence")
			}
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	passwdCmd.Flags().Bool("save", false, "store the hash in the secrets file")
}

// readPassword reads without echo on a terminal, or one line of piped input.
func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
		fmt.Fprint(errOut, "New trainer password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(errOut)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	line, err := newScanReader(cmd.InOrStdin()).Prompt("")
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
