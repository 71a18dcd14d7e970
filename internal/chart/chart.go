// Package chart renders an instrument's price series, moving averages and
// lot markers as a standalone SVG file.
package chart

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"cryptoagent/internal/model"
)

const (
	width   = 900
	height  = 300
	padLeft = 40
	padTop  = 20
	plotW   = width - 80
	plotH   = height - 60
)

// Series colours.
const (
	colorPrice = "#59a6ff"
	colorFast  = "#f2c94c"
	colorSlow  = "#bb6bd9"
	colorBuy   = "#8bff9b"
	colorSell  = "#ff7a7a"
)

type point struct{ x, y float64 }

type scale struct {
	minX, maxX, minY, maxY float64
}

func (s scale) at(t time.Time, v float64) point {
	sx := float64(plotW) / (s.maxX - s.minX + 1e-9)
	sy := float64(plotH) / (s.maxY - s.minY + 1e-9)
	x := float64(t.UnixNano())
	return point{x: (x - s.minX) * sx, y: float64(plotH) - (v-s.minY)*sy}
}

func fit(samples []model.Sample, lots []model.Lot) scale {
	s := scale{
		minX: float64(samples[0].Time.UnixNano()),
		maxX: float64(samples[len(samples)-1].Time.UnixNano()),
		minY: math.Inf(1),
		maxY: math.Inf(-1),
	}
	widen := func(v float64) {
		if !model.Defined(v) {
			return
		}
		s.minY = math.Min(s.minY, v)
		s.maxY = math.Max(s.maxY, v)
	}
	for _, smp := range samples {
		widen(smp.Price)
		widen(smp.Indicators.SMAFast)
		widen(smp.Indicators.SMASlow)
	}
	for _, l := range lots {
		widen(l.EntryPrice.InexactFloat64())
	}
	return s
}

// Render writes the SVG chart for one instrument. Undefined indicator values
// break their line rather than being drawn as zero.
func Render(w io.Writer, title string, samples []model.Sample, lots []model.Lot) error {
	if len(samples) == 0 {
		return fmt.Errorf("chart %s: no samples", title)
	}
	sc := fit(samples, lots)

	var b bytes.Buffer
	fmt.Fprintf(&b, "<svg xmlns='http://www.w3.org/2000/svg' width='%d' height='%d' viewBox='0 0 %d %d'>", width, height, width, height)
	b.WriteString("<rect width='100%' height='100%' fill='#0b0f17'/>")
	fmt.Fprintf(&b, "<g transform='translate(%d,%d)'>", padLeft, padTop)
	fmt.Fprintf(&b, "<line x1='0' y1='0' x2='0' y2='%d' stroke='#1f2837'/>", plotH)
	fmt.Fprintf(&b, "<line x1='0' y1='%d' x2='%d' y2='%d' stroke='#1f2837'/>", plotH, plotW, plotH)

	polylines(&b, sc, samples, func(s model.Sample) float64 { return s.Price }, colorPrice, 1.5)
	polylines(&b, sc, samples, func(s model.Sample) float64 { return s.Indicators.SMAFast }, colorFast, 1)
	polylines(&b, sc, samples, func(s model.Sample) float64 { return s.Indicators.SMASlow }, colorSlow, 1)

	first, last := samples[0].Time, samples[len(samples)-1].Time
	for _, l := range lots {
		if l.EntryTime.Before(first) || l.EntryTime.After(last) {
			continue
		}
		color := colorBuy
		if l.Status == model.LotPendingSell {
			color = colorSell
		}
		p := sc.at(l.EntryTime, l.EntryPrice.InexactFloat64())
		fmt.Fprintf(&b, "<circle cx='%.2f' cy='%.2f' r='3' fill='%s'/>", p.x, p.y, color)
	}
	b.WriteString("</g>")

	b.WriteString("<text x='16' y='18' fill='#e6edf3' font-family='Inter' font-size='14'>")
	if err := xml.EscapeText(&b, []byte(title)); err != nil {
		return err
	}
	b.WriteString("</text></svg>")

	_, err := w.Write(b.Bytes())
	return err
}

// polylines draws one polyline per run of defined values.
func polylines(b *bytes.Buffer, sc scale, samples []model.Sample, value func(model.Sample) float64, color string, stroke float64) {
	open := false
	for _, s := range samples {
		v := value(s)
		if !model.Defined(v) {
			if open {
				b.WriteString("'/>")
				open = false
			}
			continue
		}
		p := sc.at(s.Time, v)
		if !open {
			fmt.Fprintf(b, "<polyline fill='none' stroke='%s' stroke-width='%.1f' points='", color, stroke)
			open = true
		} else {
			b.WriteByte(' ')
		}
		fmt.Fprintf(b, "%.2f,%.2f", p.x, p.y)
	}
	if open {
		b.WriteString("'/>")
	}
}

// Writer saves one chart file per instrument into a directory.
type Writer struct {
	dir string
}

// NewWriter creates the chart directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Path returns the file a chart for instrument is written to.
func (w *Writer) Path(instrument string) string {
	return filepath.Join(w.dir, instrument+".svg")
}

// Write renders the chart to a temp file and renames it into place so
// readers never see a partial file.
func (w *Writer) Write(instrument string, samples []model.Sample, lots []model.Lot) error {
	var buf bytes.Buffer
	if err := Render(&buf, instrument, samples, lots); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(w.dir, instrument+".*.tmp")
	if err != nil {
		return fmt.Errorf("chart temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write chart: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close chart: %w", err)
	}
	return os.Rename(tmp.Name(), w.Path(instrument))
}
