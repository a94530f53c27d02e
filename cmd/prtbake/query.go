package main

import (
	"fmt"
	"strconv"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"
	"github.com/taigrr/prt/pkg/lightsector"
	"github.com/taigrr/prt/pkg/math3d"
)

func newQueryCmd(opts *options) *cobra.Command {
	var normal []float64
	cmd := &cobra.Command{
		Use:   "query x y z",
		Short: "Bake, then print the probe weights and irradiance at a point",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			point, err := parseVec(args)
			if err != nil {
				return err
			}
			if len(normal) != 3 {
				return fmt.Errorf("--normal needs three components, got %d", len(normal))
			}
			n := math3d.V3(normal[0], normal[1], normal[2])
			if n.LenSq() == 0 {
				return fmt.Errorf("--normal must not be zero")
			}
			n = n.Normalize()

			b, err := opts.bakeSector(cmd.Context(), false)
			if err != nil {
				return err
			}

			weights := b.sector.FindProbeWeights(point)
			probes := b.sector.Probes()
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				StyleFunc(func(row, _ int) lipgloss.Style {
					if row == table.HeaderRow {
						return headerStyle
					}
					return cellStyle
				}).
				Headers("probe", "position", "weight")
			for _, w := range weights {
				if w.ID == lightsector.InvalidID {
					t.Row("-", "-", "0")
					continue
				}
				t.Row(fmt.Sprint(w.ID), formatVec(probes[w.ID].Pos), strconv.FormatFloat(w.Weight, 'f', 4, 64))
			}

			out := cmd.OutOrStdout()
			lipgloss.Fprintln(out, t.String())
			lipgloss.Fprintln(out, fmt.Sprintf("weight total %.4f", weights.Total()))
			lipgloss.Fprintln(out, fmt.Sprintf("irradiance   %s", formatVec(b.sector.SampleIrradiance(point, n))))
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&normal, "normal", []float64{0, 1, 0}, "surface normal the irradiance is evaluated for")
	return cmd
}

func parseVec(args []string) (math3d.Vec3, error) {
	var v [3]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return math3d.Vec3{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
		v[i] = f
	}
	return math3d.V3(v[0], v[1], v[2]), nil
}
