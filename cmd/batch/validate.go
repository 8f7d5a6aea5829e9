package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"veobatch/internal/domain"
	"veobatch/internal/manifest"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a manifest without submitting anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(validateFile)
		if err != nil {
			return err
		}
		specs, err := m.Specs()
		if err != nil {
			return err
		}
		renderSpecs(cmd.OutOrStdout(), specs)
		fmt.Fprintf(cmd.OutOrStdout(), "%d jobs OK\n", len(specs))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "jobs.yaml", "Path to the job manifest")
}

func renderSpecs(w io.Writer, specs []domain.JobSpec) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Input", "Prompt", "Model", "Aspect", "Quality"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, spec := range specs {
		table.Append([]string{
			strconv.Itoa(i + 1),
			spec.InputType(),
			truncate(spec.Input.PromptText(), 48),
			spec.Model,
			spec.AspectRatio,
			string(spec.Quality),
		})
	}
	table.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
