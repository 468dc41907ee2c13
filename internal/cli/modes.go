package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betresolver/internal/domain"
	"github.com/alanyoungcy/betresolver/internal/modes"
)

// NewModesCommand lists the registered game modes.
func NewModesCommand(opts *RootOptions) *cobra.Command {
	var league string
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "List game modes and the leagues they support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := domain.LeagueAny
			if league != "" {
				l = domain.ParseLeague(league)
			}
			reg := modes.NewDefaultRegistry()
			list := make([]modes.Overview, 0)
			for _, m := range reg.List(l) {
				list = append(list, modes.OverviewOf(m))
			}
			return printModes(cmd.OutOrStdout(), opts.Format, list)
		},
	}
	cmd.Flags().StringVar(&league, "league", "", "only modes supporting this league (NFL, NBA, ...)")
	return cmd
}

func printModes(w io.Writer, format string, list []modes.Overview) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	table := tablewriter.NewWriter(w)
	table.Header("Key", "Label", "Leagues", "Resolution", "Config")
	for _, ov := range list {
		leagues := make([]string, 0, len(ov.Leagues))
		for _, l := range ov.Leagues {
			leagues = append(leagues, string(l))
		}
		resolution := "automatic"
		if ov.Manual {
			resolution = "manual"
		}
		if err := table.Append(ov.Key, ov.Label, strings.Join(leagues, ","), resolution, strings.Join(ov.ConfigFields, ", ")); err != nil {
			return err
		}
	}
	return table.Render()
}
