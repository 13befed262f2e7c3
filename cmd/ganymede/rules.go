package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/rules"
	"mercator-hq/ganymede/pkg/rules/parse"
)

var rulesFlags struct {
	file   string
	dir    string
	format string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate and inspect rule files",
	Long: `Validate and inspect rule files.

Rule files are YAML documents declaring gate, rate limit, quota, and
staleness rules. These commands work on files directly and never touch
a running engine; use them locally or in CI before publishing.

Examples:
  # Validate a single file
  ganymede rules validate --file rules/gates.yaml

  # Validate a rules directory the way the engine would load it
  ganymede rules validate --dir rules/

  # Show the merged rule set in evaluation order
  ganymede rules list --dir rules/`,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rule files",
	Long: `Validate rule files for syntax and structural errors.

Validation covers:
  - YAML syntax
  - Required fields and value constraints per rule
  - Predicate parameters
  - Duplicate rule IDs across the merged set

Examples:
  # Validate single file
  ganymede rules validate --file gates.yaml

  # Validate directory
  ganymede rules validate --dir rules/

  # JSON output for CI
  ganymede rules validate --dir rules/ --format json`,
	RunE: validateRuleFiles,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	Long: `List the rules of a file or directory in evaluation order.

Rules are merged and sorted the way the engine sorts them at load time,
highest priority first, so the listing shows the order gates will
consult them in.`,
	RunE: listRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesListCmd)

	for _, c := range []*cobra.Command{rulesValidateCmd, rulesListCmd} {
		c.Flags().StringVarP(&rulesFlags.file, "file", "f", "", "rule file to read")
		c.Flags().StringVarP(&rulesFlags.dir, "dir", "d", "", "directory of rule files")
		c.Flags().StringVar(&rulesFlags.format, "format", "text", "output format (text, json)")
	}
}

// ruleFileArgs resolves the --file/--dir flags, falling back to the
// configured rules directory when neither is given.
func ruleFileArgs() ([]string, error) {
	if rulesFlags.file != "" && rulesFlags.dir != "" {
		return nil, fmt.Errorf("--file and --dir are mutually exclusive")
	}

	if rulesFlags.file != "" {
		return []string{rulesFlags.file}, nil
	}

	dir := rulesFlags.dir
	if dir == "" {
		cfg, err := initConfig()
		if err != nil {
			return nil, err
		}
		if cfg.Rules.Mode != "file" || cfg.Rules.Path == "" {
			return nil, fmt.Errorf("no rule files: pass --file or --dir, or configure rules.path")
		}
		dir = cfg.Rules.Path
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list rule files: %w", err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no rule files found in %s", dir)
	}
	return files, nil
}

// ValidationResult is the validation outcome for a single rule file.
type ValidationResult struct {
	File   string            `json:"file"`
	Rules  int               `json:"rules"`
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one positioned error within a rule file.
type ValidationError struct {
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func validateRuleFiles(cmd *cobra.Command, args []string) error {
	files, err := ruleFileArgs()
	if err != nil {
		return err
	}

	parser := parse.NewParser()
	results := make([]ValidationResult, 0, len(files)+1)
	var merged []rules.Rule
	allValid := true

	for _, file := range files {
		result, parsed := validateRuleFile(parser, file)
		if result.Valid {
			merged = append(merged, parsed...)
		} else {
			allValid = false
		}
		results = append(results, result)
	}

	// Files merge into one set at load time, so duplicate IDs across
	// files are load failures even when every file is valid alone.
	if allValid && len(files) > 1 {
		if _, err := rules.NewRuleSet(merged); err != nil {
			allValid = false
			results = append(results, ValidationResult{
				File:   "(merged set)",
				Rules:  len(merged),
				Errors: []ValidationError{{Message: err.Error()}},
			})
		}
	}

	if rulesFlags.format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(results); err != nil {
			return err
		}
	} else {
		printValidationText(results)
	}

	if !allValid {
		return cli.NewCommandError("rules validate", fmt.Errorf("validation failed"))
	}
	return nil
}

func validateRuleFile(parser *parse.Parser, path string) (ValidationResult, []rules.Rule) {
	result := ValidationResult{File: path, Valid: true}

	doc, err := parser.ParseFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = toValidationErrors(err)
		return result, nil
	}
	result.Rules = len(doc.Rules)

	if _, err := rules.NewRuleSet(doc.Rules); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, toValidationErrors(err)...)
		return result, nil
	}
	return result, doc.Rules
}

func toValidationErrors(err error) []ValidationError {
	var list *parse.ErrorList
	if errors.As(err, &list) {
		out := make([]ValidationError, 0, len(list.Errors))
		for _, e := range list.Errors {
			out = append(out, ValidationError{
				Line:       e.Location.Line,
				Column:     e.Location.Column,
				Message:    e.Message,
				Type:       string(e.Type),
				Suggestion: e.Suggestion,
			})
		}
		return out
	}

	var single *parse.Error
	if errors.As(err, &single) {
		return []ValidationError{{
			Line:       single.Location.Line,
			Column:     single.Location.Column,
			Message:    single.Message,
			Type:       string(single.Type),
			Suggestion: single.Suggestion,
		}}
	}

	return []ValidationError{{Message: err.Error()}}
}

func printValidationText(results []ValidationResult) {
	totalErrors := 0

	for _, result := range results {
		fmt.Printf("Validating %s...\n", result.File)

		if result.Valid {
			fmt.Println("✓ Syntax valid")
			fmt.Printf("✓ %d rule(s) well formed\n", result.Rules)
		}

		for _, e := range result.Errors {
			fmt.Printf("✗ Error: %s", e.Message)
			if e.Line > 0 {
				fmt.Printf(" (line %d", e.Line)
				if e.Column > 0 {
					fmt.Printf(", col %d", e.Column)
				}
				fmt.Print(")")
			}
			if e.Type != "" {
				fmt.Printf(" [%s]", e.Type)
			}
			fmt.Println()
			if e.Suggestion != "" {
				fmt.Printf("  suggestion: %s\n", e.Suggestion)
			}
			totalErrors++
		}

		fmt.Println()
	}

	fmt.Println("Summary:")
	fmt.Printf("  %d error(s)\n", totalErrors)
}

// ruleListing is the JSON shape for rules list.
type ruleListing struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Effect    string `json:"effect"`
	Priority  int    `json:"priority"`
	Reason    string `json:"reason,omitempty"`
}

func listRules(cmd *cobra.Command, args []string) error {
	files, err := ruleFileArgs()
	if err != nil {
		return err
	}

	parser := parse.NewParser()
	var merged []rules.Rule
	for _, file := range files {
		doc, err := parser.ParseFile(file)
		if err != nil {
			return cli.NewCommandError("rules list", fmt.Errorf("%s: %w", file, err))
		}
		merged = append(merged, doc.Rules...)
	}

	set, err := rules.NewRuleSet(merged)
	if err != nil {
		return cli.NewCommandError("rules list", err)
	}

	if rulesFlags.format == "json" {
		listings := make([]ruleListing, 0, set.Len())
		for _, r := range set.Rules() {
			listings = append(listings, ruleListing{
				ID:        r.ID,
				Name:      r.Name,
				Subject:   fmt.Sprintf("%s/%s", r.Subject.Kind, r.Subject.Value),
				Predicate: r.Predicate.String(),
				Effect:    string(r.Effect),
				Priority:  r.Priority,
				Reason:    r.Reason,
			})
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(listings)
	}

	fmt.Printf("Rule set %s (%d rules)\n\n", set.Version(), set.Len())

	table := cli.NewTable(os.Stdout)
	table.Header("ID", "SUBJECT", "PREDICATE", "EFFECT", "PRIORITY")
	for _, r := range set.Rules() {
		table.Row(
			r.ID,
			fmt.Sprintf("%s/%s", r.Subject.Kind, r.Subject.Value),
			r.Predicate.String(),
			string(r.Effect),
			strconv.Itoa(r.Priority),
		)
	}
	return table.Flush()
}
