package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/promote/internal/policy"
)

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Work with field-policy files",
	}
	cmd.AddCommand(newPolicyValidateCommand(rootOpts))
	return cmd
}

// PolicySummary describes a compiled field policy.
type PolicySummary struct {
	Valid             bool            `json:"valid"`
	AutoMergeOneSided bool            `json:"auto_merge_one_sided"`
	Bundles           []BundleSummary `json:"bundles,omitempty"`
}

// BundleSummary lists one bundle's configured rules.
type BundleSummary struct {
	EntityType string `json:"entity_type"`
	Bundle     string `json:"bundle"`
	Fields     int    `json:"fields"`
	TextField  string `json:"text_field,omitempty"`
}

// PolicyErrorEntry locates a policy error.
type PolicyErrorEntry struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

func newPolicyValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Compile and check the CUE field-policy files in a directory",
		Long: `Compile every .cue file in the directory as one field policy and check
it against the policy schema and for contradicting rules, such as a
blacklisted field listed in merge_display.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			f.VerboseLog("compiling policy in %s", args[0])

			p, err := policy.LoadDir(args[0])
			if err != nil {
				entry := &PolicyErrorEntry{Field: "load", Message: err.Error()}
				var ce *policy.CompileError
				if errors.As(err, &ce) {
					entry.Field = ce.Field
					entry.Message = ce.Message
					if ce.Pos.IsValid() {
						entry.File = ce.Pos.Filename()
						entry.Line = ce.Pos.Line()
					}
				}
				if outErr := f.Error(ErrCodePolicy, err.Error(), entry); outErr != nil {
					return outErr
				}
				return WrapExitError(ExitFailure, "policy is invalid", err)
			}

			summary := PolicySummary{Valid: true, AutoMergeOneSided: p.OneSided()}
			for _, b := range p.Bundles() {
				summary.Bundles = append(summary.Bundles, BundleSummary{
					EntityType: b.EntityType,
					Bundle:     b.Name,
					Fields:     len(b.Fields),
					TextField:  b.TextField,
				})
			}
			return f.Success(summary, func(w io.Writer) {
				fmt.Fprintf(w, "Policy is valid: %d bundle(s)\n", len(summary.Bundles))
				for _, b := range summary.Bundles {
					fmt.Fprintf(w, "  %s.%s: %d field rule(s)\n", b.EntityType, b.Bundle, b.Fields)
				}
			})
		},
	}
}
