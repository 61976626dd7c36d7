package stats

import (
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// LossPlot renders the training loss per epoch.
func LossPlot(hist []Stats) *plot.Plot {
	plt := newPlot()
	line := newLinePlot(hist, 0, 1)
	plt.Add(line)
	plt.Legend.Add("training loss ", line)
	return plt
}

// AccuracyPlot renders the accuracy series per epoch as percentages.
// names labels Values[1:] in order.
func AccuracyPlot(hist []Stats, names []string) *plot.Plot {
	plt := newPlot()
	for i, name := range names {
		line := newLinePlot(hist, i+1, 100)
		plt.Add(line)
		plt.Legend.Add(name+" % ", line)
	}
	return plt
}

// WriteSVG saves a plot to an SVG file, creating parent directories.
func WriteSVG(plt *plot.Plot, w, h vg.Length, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return plt.Save(w, h, path)
}

func newPlot() *plot.Plot {
	p := plot.New()
	p.X.Padding, p.Y.Padding = 0, 0
	p.X.Label.Text = "epoch"
	p.X.Tick.Label.Font.Size = 10
	p.Y.Tick.Label.Font.Size = 10
	p.Legend.Top = true
	p.Legend.TextStyle.Font.Size = 12
	p.Add(plotter.NewGrid())
	return p
}

func newLinePlot(hist []Stats, ix int, scale float64) linePlot {
	var pts plotter.XYs
	xmax, ymax := 1.0, 0.0
	for _, s := range hist {
		pt := plotter.XY{X: float64(s.Epoch), Y: s.Values[ix] * scale}
		pts = append(pts, pt)
		if pt.X > xmax {
			xmax = pt.X
		}
		if pt.Y > ymax {
			ymax = pt.Y
		}
	}
	l, _ := plotter.NewLine(pts)
	l.Width = 2
	l.Color = plotutil.Color(ix)
	return linePlot{Line: l, xmin: 1, xmax: xmax, ymin: 0, ymax: ymax}
}

// modified plotter.Line with a fixed scale
type linePlot struct {
	*plotter.Line
	xmin, xmax, ymin, ymax float64
}

func (l linePlot) DataRange() (xmin, xmax, ymin, ymax float64) {
	return l.xmin, l.xmax, l.ymin, l.ymax
}
