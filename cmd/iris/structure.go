package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/retz8/iris/internal/analysis"
	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/structure"
	"github.com/retz8/iris/internal/treesitter"
)

var structureCmd = &cobra.Command{
	Use:   "structure <file>",
	Short: "Print the shallow structure sent to the reasoning service",
	Long: `Print the shallow structure of a file: top-level declarations and their
members with signatures, attached comments and line ranges. No provider is called.`,
	Args: cobra.ExactArgs(1),
	RunE: runStructure,
}

var structureHints bool

func init() {
	structureCmd.Flags().StringVarP(&analyzeLanguage, "language", "l", "", "language (default: from extension)")
	structureCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "json", "output format: json or yaml")
	structureCmd.Flags().BoolVar(&structureHints, "hints", false, "print the declarations worth reading instead")
}

func runStructure(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.FileSystemError(err, "read "+path)
	}

	lang := analyzeLanguage
	if lang == "" {
		lang = treesitter.DetectLanguage(path)
	}

	c := openCache()
	defer c.Close()
	a := analysis.New(nil, structure.NewCompressor(treesitter.NewParser()),
		analysis.OptionsFromConfig(cfg.Analysis), analysis.WithCache(c))

	root, err := a.Structure(cmd.Context(), string(data), lang)
	if err != nil {
		return err
	}

	var out any = root
	if structureHints {
		out = structure.ReadHints(root)
	}
	w := cmd.OutOrStdout()
	if analyzeFormat == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
