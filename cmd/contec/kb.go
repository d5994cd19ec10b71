package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/contec/internal/knowledge"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect and edit the knowledge base",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List taught question/answer pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store knowledge.Store) error {
			kb, err := store.Load(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if kb.Len() == 0 {
				fmt.Fprintln(out, "No entries.")
				return nil
			}
			for i, e := range kb.Questions {
				fmt.Fprintf(out, "%3d. %s\n     %s\n", i+1, colorize(colorBold, e.Question), e.Answer)
			}
			return nil
		})
	},
}

var kbAddCmd = &cobra.Command{
	Use:   "add <question> <answer>",
	Short: "Teach an answer directly",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, a := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
		if q == "" || a == "" {
			return fmt.Errorf("question and answer must not be empty")
		}
		return withStore(cmd.Context(), func(ctx context.Context, store knowledge.Store) error {
			kb, err := store.Load(ctx)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, kb.With(knowledge.Entry{Question: q, Answer: a})); err != nil {
				return fmt.Errorf("saving knowledge base: %w", err)
			}
			printSuccess("Learned %q (%d entries)", q, kb.Len()+1)
			return nil
		})
	},
}

var kbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the knowledge base as JSON or TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("output")

		format := knowledge.FormatJSON
		if outPath != "" {
			format = knowledge.FormatFromPath(outPath)
		}
		if formatStr != "" {
			f, err := knowledge.ParseFormat(formatStr)
			if err != nil {
				return err
			}
			format = f
		}

		return withStore(cmd.Context(), func(ctx context.Context, store knowledge.Store) error {
			kb, err := store.Load(ctx)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := knowledge.Encode(w, kb, format); err != nil {
				return fmt.Errorf("encoding knowledge base: %w", err)
			}
			if outPath != "" {
				printSuccess("Exported %d entries to %s", kb.Len(), outPath)
			}
			return nil
		})
	},
}

var kbImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add entries from a JSON or TOML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		replace, _ := cmd.Flags().GetBool("replace")

		path := args[0]
		format := knowledge.FormatFromPath(path)
		if formatStr != "" {
			f, err := knowledge.ParseFormat(formatStr)
			if err != nil {
				return err
			}
			format = f
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()
		incoming, err := knowledge.Decode(f, format)
		if err != nil {
			return err
		}

		printStep("Importing %d entries from %s", incoming.Len(), path)
		return withStore(cmd.Context(), func(ctx context.Context, store knowledge.Store) error {
			var kb knowledge.Base
			if !replace {
				if kb, err = store.Load(ctx); err != nil {
					return err
				}
			}
			for _, e := range incoming.Questions {
				kb = kb.With(e)
			}
			if err := store.Save(ctx, kb); err != nil {
				return fmt.Errorf("saving knowledge base: %w", err)
			}
			printSuccess("Imported %d entries (%d total)", incoming.Len(), kb.Len())
			return nil
		})
	},
}

func init() {
	kbExportCmd.Flags().String("format", "", "json or toml (default from --output extension, else json)")
	kbExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	kbImportCmd.Flags().String("format", "", "json or toml (default from file extension)")
	kbImportCmd.Flags().Bool("replace", false, "replace the knowledge base instead of appending")

	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbAddCmd)
	kbCmd.AddCommand(kbExportCmd)
	kbCmd.AddCommand(kbImportCmd)
}

// withStore opens the configured store for a single administrative
// operation, bounded by storage.save_timeout.
func withStore(ctx context.Context, fn func(context.Context, knowledge.Store) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Storage.SaveTimeoutDuration())
	defer cancel()
	return fn(ctx, a.store)
}
