package visualiser

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"github.com/banshee-data/eagerfusion/internal/fusion/tracks"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ChartOptions controls the HTML chart page.
type ChartOptions struct {
	Title      string
	Subtitle   string
	AssetsHost string // empty uses the go-echarts default CDN
}

// RenderTracksHTML writes an HTML page with one scatter chart per
// coordinate space present in trks. Each chart shows every trail point
// (coloured by its position in the history) and the latest position of each track as a separate
// series per state.
func RenderTracksHTML(w io.Writer, trks []tracks.Track, o ChartOptions) error {
	if o.Title == "" {
		o.Title = "Tracks"
	}
	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}

	groups := bySpace(trks)
	added := 0
	for _, space := range []detection.Space{detection.SpaceImage, detection.SpaceGround} {
		if len(groups[space]) == 0 {
			continue
		}
		page.AddCharts(trackScatter(groups[space], space, o))
		added++
	}
	if added == 0 {
		page.AddCharts(trackScatter(nil, detection.SpaceImage, o))
	}
	return page.Render(w)
}

func trackScatter(trks []tracks.Track, space detection.Space, o ChartOptions) *charts.Scatter {
	trail := make([]opts.ScatterData, 0)
	latest := map[tracks.TrackState][]opts.ScatterData{}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	maxHits := 1

	for _, t := range trks {
		pts, _ := Trail(t)
		for i, p := range pts {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
			trail = append(trail, opts.ScatterData{
				Name:  fmt.Sprintf("track %d", t.TrackID),
				Value: []interface{}{p.X, p.Y, i + 1},
			})
		}
		if len(pts) > 0 {
			last := pts[len(pts)-1]
			latest[t.State] = append(latest[t.State], opts.ScatterData{
				Name:  fmt.Sprintf("track %d (%s, hits=%d)", t.TrackID, t.State, t.Hits),
				Value: []interface{}{last.X, last.Y, t.Hits},
			})
		}
		if t.Hits > maxHits {
			maxHits = t.Hits
		}
	}
	if math.IsInf(minX, 1) {
		minX, maxX, minY, maxY = 0, 1, 0, 1
	}
	padX := math.Max((maxX-minX)*0.05, 1)
	padY := math.Max((maxY-minY)*0.05, 1)

	xName, yName := axisNames(space)
	subtitle := o.Subtitle
	if subtitle == "" {
		subtitle = fmt.Sprintf("space=%s tracks=%d", space, len(trks))
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.Title, Theme: "dark", Width: "900px", Height: "700px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - padX, Max: maxX + padX, Name: xName, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY - padY, Max: maxY + padY, Name: yName, NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        1,
			Max:        float32(maxHits),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("trail", trail, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	for _, state := range []tracks.TrackState{tracks.TrackTentative, tracks.TrackActive, tracks.TrackRetired} {
		if len(latest[state]) == 0 {
			continue
		}
		scatter.AddSeries(string(state), latest[state], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}
	return scatter
}

// Handler serves RenderTracksHTML over the tracks returned by source on
// each request.
func Handler(source func() []tracks.Track, o ChartOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := RenderTracksHTML(&buf, source(), o); err != nil {
			http.Error(w, fmt.Sprintf("failed to render tracks chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}
