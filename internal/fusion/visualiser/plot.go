package visualiser

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"github.com/banshee-data/eagerfusion/internal/fusion/tracks"
)

// Default PNG size.
const (
	DefaultPlotWidth  = 10 * vg.Inch
	DefaultPlotHeight = 8 * vg.Inch
)

// TrailsPlot draws one line per track through its history positions in
// the given space, with a marker at the latest position. Image-space plots
// have an inverted Y axis so they read like the camera frame.
func TrailsPlot(trks []tracks.Track, space detection.Space) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track trails (%s)", space)
	p.X.Label.Text, p.Y.Label.Text = axisNames(space)
	if space == detection.SpaceImage {
		p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	}
	p.Add(plotter.NewGrid())

	selected := bySpace(trks)[space]
	sort.Slice(selected, func(a, b int) bool { return selected[a].TrackID < selected[b].TrackID })
	colors := generateColors(len(selected))

	for i, t := range selected {
		pts, _ := Trail(t)
		xys := make(plotter.XYs, len(pts))
		for k, pt := range pts {
			xys[k] = plotter.XY{X: pt.X, Y: pt.Y}
		}

		label := fmt.Sprintf("#%d %s", t.TrackID, t.State)
		if len(xys) > 1 {
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, err
			}
			line.Color = colors[i]
			line.Width = vg.Points(1.5)
			if t.State != tracks.TrackActive {
				line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			}
			p.Add(line)
		}

		head, err := plotter.NewScatter(xys[len(xys)-1:])
		if err != nil {
			return nil, err
		}
		head.GlyphStyle.Color = colors[i]
		head.GlyphStyle.Radius = vg.Points(3)
		head.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(head)
		p.Legend.Add(label, head)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WriteTrailsPNG saves TrailsPlot to path. The format follows the file
// extension (.png, .svg, .pdf).
func WriteTrailsPNG(path string, trks []tracks.Track, space detection.Space) error {
	p, err := TrailsPlot(trks, space)
	if err != nil {
		return err
	}
	if err := p.Save(DefaultPlotWidth, DefaultPlotHeight, path); err != nil {
		return fmt.Errorf("save trails plot: %w", err)
	}
	return nil
}

// DominantSpace returns the space holding most tracks, preferring image
// space on a tie.
func DominantSpace(trks []tracks.Track) detection.Space {
	g := bySpace(trks)
	if len(g[detection.SpaceGround]) > len(g[detection.SpaceImage]) {
		return detection.SpaceGround
	}
	return detection.SpaceImage
}

// generateColors returns n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	rf := hueToRGB(p, q, h+1.0/3.0)
	gf := hueToRGB(p, q, h)
	bf := hueToRGB(p, q, h-1.0/3.0)
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
