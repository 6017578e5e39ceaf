package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harun/skagent/pkg/tools"
	"github.com/spf13/cobra"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	Long: `List every tool the planner can target, with its description and
whether the configured policy allows it.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print descriptors as JSON")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg := tools.NewRegistry()
	opts := tools.BuiltinOptions{HTTPTimeout: cfg.Tools.HTTPTimeout, URLPolicy: cfg.Tools.URLPolicy}
	if cfg.Tools.Browser.Enabled {
		browser := cfg.Tools.Browser.BrowserOptions
		opts.Browser = &browser
	}
	if err := tools.RegisterBuiltins(reg, opts); err != nil {
		return err
	}

	descriptors := reg.List()
	out := cmd.OutOrStdout()
	if toolsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(descriptors)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tALLOWED\tTAGS\tDESCRIPTION")
	for _, d := range descriptors {
		allowed := "yes"
		if !cfg.Tools.Policy.Allows(d.Name) {
			allowed = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, allowed, strings.Join(d.Tags, ","), d.Description)
	}
	return tw.Flush()
}
