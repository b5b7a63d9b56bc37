package sweep

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	defaultPlotHeight   = 8
	minPlotWidth        = 10
	axisLabelWidth      = 10
	axisSeparator       = " │ "
	colorCurve          = "\x1b[36m"
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

// PlotProfile renders a profile as a braille curve, with the log-likelihood on
// the vertical axis and the parameter value on the horizontal axis.
// Non-finite points are skipped. width <= 0 fits the terminal.
func PlotProfile(w io.Writer, p Profile, width, height int, forceColor bool) error {
	xs, ys := finitePoints(p)
	if len(xs) < 2 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	width = max(width, minPlotWidth)

	minY, maxY := ys[0], ys[0]
	for _, y := range ys {
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
	}
	if maxY-minY < 1e-9 {
		minY--
		maxY++
	}
	minX, maxX := xs[0], xs[len(xs)-1]

	cells := make([][]uint8, height)
	for i := range cells {
		cells[i] = make([]uint8, width)
	}
	dotsX, dotsY := width*2, height*4
	toDot := func(x, y float64) (int, int) {
		px := int(math.Round((x - minX) / (maxX - minX) * float64(dotsX-1)))
		py := int(math.Round((maxY - y) / (maxY - minY) * float64(dotsY-1)))
		return px, py
	}
	prevX, prevY := toDot(xs[0], ys[0])
	setBrailleDot(cells, prevX, prevY)
	for i := 1; i < len(xs); i++ {
		px, py := toDot(xs[i], ys[i])
		drawLine(prevX, prevY, px, py, func(x, y int) { setBrailleDot(cells, x, y) })
		prevX, prevY = px, py
	}

	useColor := shouldUseColor(w, forceColor)
	if _, err := fmt.Fprintf(w, "Profile %s\n", p.Name); err != nil {
		return err
	}
	for y, row := range cells {
		label := ""
		switch y {
		case 0:
			label = fmt.Sprintf("%.4g", maxY)
		case height - 1:
			label = fmt.Sprintf("%.4g", minY)
		}
		var line strings.Builder
		line.WriteString(runewidth.FillLeft(runewidth.Truncate(label, axisLabelWidth, ""), axisLabelWidth))
		line.WriteString(axisSeparator)
		if useColor {
			line.WriteString(colorCurve)
		}
		for _, mask := range row {
			line.WriteRune(rune(0x2800 + int(mask)))
		}
		if useColor {
			line.WriteString(colorReset)
		}
		if _, err := fmt.Fprintln(w, line.String()); err != nil {
			return err
		}
	}
	lo := fmt.Sprintf("%.4g", minX)
	hi := fmt.Sprintf("%.4g", maxX)
	gap := max(1, width-runewidth.StringWidth(lo)-runewidth.StringWidth(hi))
	indent := strings.Repeat(" ", axisLabelWidth+runewidth.StringWidth(axisSeparator))
	if _, err := fmt.Fprintf(w, "%s%s%s%s\n\n", indent, lo, strings.Repeat(" ", gap), hi); err != nil {
		return err
	}
	return nil
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	return max(totalWidth-axisLabelWidth-runewidth.StringWidth(axisSeparator), minPlotWidth)
}

func finitePoints(p Profile) (xs, ys []float64) {
	for i, y := range p.LogLike {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		xs = append(xs, p.Values[i])
		ys = append(ys, y)
	}
	return xs, ys
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// Braille dot bits by (column, row) within a 2x4 cell.
var brailleBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func setBrailleDot(cells [][]uint8, x, y int) {
	if x < 0 || y < 0 || y/4 >= len(cells) || x/2 >= len(cells[y/4]) {
		return
	}
	cells[y/4][x/2] |= brailleBits[x%2][y%4]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
