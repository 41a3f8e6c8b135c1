package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"clipforge/internal/ports"
	"clipforge/internal/project"
)

var compositionsCmd = &cobra.Command{
	Use:   "compositions",
	Short: "List the compositions of the video project",
	Long:  `Builds the project at TEMPLATE_ENTRY_POINT (or the built-in one) and lists the compositions it declares.`,
	RunE:  runCompositions,
}

func init() {
	compositionsCmd.Flags().Bool("json", false, "Print the manifest as JSON")
	rootCmd.AddCommand(compositionsCmd)
}

func runCompositions(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	handle, err := project.NewBuilder(cfg.ScratchDir, log).Build(cmd.Context(), cfg.TemplateEntryPoint, ports.BuildOptions{})
	if err != nil {
		return err
	}
	bundle, err := project.OpenBundle(handle.Location)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), bundle.Manifest)
	}
	return printCompositions(cmd.OutOrStdout(), bundle.Manifest)
}

func printCompositions(w io.Writer, m project.Manifest) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPONENT\tSIZE\tFPS\tFRAMES\tPROPS")
	for _, c := range m.Compositions {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%d\t%s\n",
			c.ID, c.Component, c.Width, c.Height, c.FPS, c.DurationInFrames, propList(c))
	}
	return tw.Flush()
}

// propList renders declared props as name:type, required ones marked with *.
func propList(c project.CompositionSpec) string {
	names := make([]string, 0, len(c.Props))
	for name := range c.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		p := c.Props[name]
		s := name + ":" + p.Type
		if p.Required {
			s += "*"
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
