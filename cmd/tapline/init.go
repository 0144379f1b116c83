package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omarluq/tapline/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a project with the reference manifest",
	Long: `Write a meltano.yml declaring the tap-iterable extractor and the
target-jsonl loader into dir (default: the current directory). An existing
manifest is never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	path, err := manifest.Init(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Manifest created at %s\n", okMark(), path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set TAP_ITERABLE_API_KEY")
	fmt.Fprintln(out, "  2. Install plugins: tapline install")
	fmt.Fprintln(out, "  3. Validate with: tapline validate")
	fmt.Fprintln(out, "  4. Run the pipeline: tapline run tap-iterable target-jsonl")
	return nil
}
