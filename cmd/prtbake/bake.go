package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"
	"github.com/taigrr/prt/pkg/lightsector"
	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/render"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7FD4FF")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB347"))
)

func newBakeCmd(opts *options) *cobra.Command {
	var (
		dumpDir, format string
		listProbes      bool
	)
	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Bake a scene and report what was produced",
		Example: `# Bake the built-in room
prtbake bake

# Bake a config and write the probe atlases as BMP
prtbake bake -c sponza.json --dump out --format bmp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "png" && format != "bmp" {
				return fmt.Errorf("unknown image format %q (use png or bmp)", format)
			}
			b, err := opts.bakeSector(cmd.Context(), dumpDir != "")
			if err != nil {
				return err
			}
			writeReport(cmd.OutOrStdout(), b.result)
			if listProbes {
				writeProbes(cmd.OutOrStdout(), b.sector.Probes())
			}
			if dumpDir == "" {
				return nil
			}
			return dumpCapture(b.result.Capture, dumpDir, format)
		},
	}
	cmd.Flags().StringVar(&dumpDir, "dump", "", "write the albedo, normal and depth atlases to this directory")
	cmd.Flags().StringVar(&format, "format", "png", "atlas image format: png or bmp")
	cmd.Flags().BoolVar(&listProbes, "probes", false, "print each probe's relit irradiance")
	return cmd
}

func writeReport(w io.Writer, res *lightsector.BakeResult) {
	st := res.Stats
	ns := st.NetworkStats

	stages := table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("stage", "time").
		Row("capture", roundDuration(st.Capture)).
		Row("gather", roundDuration(st.Gather)).
		Row("cluster", roundDuration(st.Cluster)).
		Row("sky", roundDuration(st.Sky)).
		Row("network", roundDuration(st.Network)).
		Row("total", roundDuration(st.Total()))

	counts := table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("output", "count").
		Row("probes", fmt.Sprint(len(res.Probes))).
		Row("surfel samples", fmt.Sprint(st.SurfelSamples)).
		Row("sky samples", fmt.Sprint(st.SkySamples)).
		Row("surfels", fmt.Sprint(len(res.Surfels))).
		Row("bricks", fmt.Sprint(len(res.SurfelBricks))).
		Row("brick factors", fmt.Sprint(len(res.SurfelBrickFactors))).
		Row("tetrahedra", fmt.Sprint(ns.Tetrahedra)).
		Row("inner cells", fmt.Sprint(ns.InnerCells)).
		Row("outer cells", fmt.Sprint(ns.OuterCells)).
		Row("hull probes", fmt.Sprint(ns.HullProbes))

	lipgloss.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, stages.String(), " ", counts.String()))
	if !st.HullCovered {
		lipgloss.Fprintln(w, warnStyle.Render(fmt.Sprintf(
			"inner cells cover %.3f of a %.3f hull volume", ns.CellVolume, ns.HullVolume)))
	}
}

// writeProbes prints the ambient cube of every probe, one row per probe.
func writeProbes(w io.Writer, probes []lightsector.Probe) {
	headers := []string{"id", "position"}
	for a := range math3d.AxisCount {
		headers = append(headers, math3d.Axis(a).String())
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#5C5C70"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
	for _, p := range probes {
		row := []string{fmt.Sprint(p.ID), formatVec(p.Pos)}
		for _, c := range p.Irradiance {
			row = append(row, formatVec(c))
		}
		t.Row(row...)
	}
	lipgloss.Fprintln(w, t.String())
}

func formatVec(v math3d.Vec3) string {
	return fmt.Sprintf("%.2f %.2f %.2f", v.X, v.Y, v.Z)
}

func roundDuration(d time.Duration) string {
	return d.Round(10 * time.Microsecond).String()
}

func dumpCapture(c *lightsector.Capture, dir, format string) error {
	if c == nil {
		return fmt.Errorf("bake kept no capture")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	atlases := []struct {
		name string
		px   render.PixelData
	}{
		{"albedo", c.Albedo},
		{"normal", c.Normal},
		{"depth", c.Depth},
	}
	for _, a := range atlases {
		path := filepath.Join(dir, a.name+"."+format)
		if err := render.SaveImage(path, a.px.Image()); err != nil {
			return err
		}
		lightsector.Logger().Info("wrote atlas", "path", path, "width", a.px.Width, "height", a.px.Height)
	}
	return nil
}
