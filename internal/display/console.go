// Package display renders mission snapshots on a terminal.
package display

import (
	"fmt"
	"io"
	"strings"

	"mixer-line/internal/models"

	"github.com/fatih/color"
)

const gaugeWidth = 20

var (
	ledOn   = color.New(color.FgGreen, color.Bold)
	ledOff  = color.New(color.FgRed)
	warn    = color.New(color.FgYellow)
	failed  = color.New(color.FgRed, color.Bold)
	label   = color.New(color.Faint)
	gauges  = []*color.Color{color.New(color.FgRed), color.New(color.FgGreen), color.New(color.FgBlue)}
	running = color.New(color.FgCyan)
)

type Console struct {
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Render writes a one-line view of the snapshot.
func (c *Console) Render(s models.Snapshot) {
	fmt.Fprintln(c.out, Line(s))
}

// RenderDetail writes the multi-line status block.
func (c *Console) RenderDetail(s models.Snapshot) {
	fmt.Fprintf(c.out, "%s %s\n", label.Sprint("Phase:          "), phase(s.Phase))
	fmt.Fprintf(c.out, "%s %s\n", label.Sprint("Mixer:          "), led(s.MixerActive))
	fmt.Fprintf(c.out, "%s %.2f / %.0f\n", label.Sprint("Current volume: "), s.CurrentVolume, s.TankCapacity)
	for i := range s.Reservoirs {
		fmt.Fprintf(c.out, "%s %s %.2f\n", label.Sprintf("Reservoir %d:    ", i+1),
			gauges[i].Sprint(Gauge(s.ReservoirLevel(i))), s.Reservoirs[i])
	}
	fmt.Fprintf(c.out, "%s %s %.1fs / %.0fs\n", label.Sprint("Remaining time: "),
		Gauge(s.Progress()), s.RemainingTime, s.MissionDuration)
	fmt.Fprintf(c.out, "%s %s\n", label.Sprint("Elapsed:        "), s.ElapsedClock())
	fmt.Fprintf(c.out, "%s %.1f\n", label.Sprint("Output flow:    "), s.OutputFlow)
	fmt.Fprintf(c.out, "%s %d\n", label.Sprint("Replenishments: "), s.Replenishments)
	if s.LastError != "" {
		fmt.Fprintf(c.out, "%s %s\n", label.Sprint("Last failure:   "), failed.Sprint(s.LastError))
	}
}

// Line formats the snapshot as a single status line.
func Line(s models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s vol=%.1f", s.ElapsedClock(), led(s.MixerActive), phase(s.Phase), s.CurrentVolume)
	for i, q := range s.Reservoirs {
		fmt.Fprintf(&b, " r%d=%s", i+1, gauges[i].Sprintf("%.1f", q))
	}
	fmt.Fprintf(&b, " remaining=%.1fs flow=%.1f", s.RemainingTime, s.OutputFlow)
	return b.String()
}

// Gauge draws a fixed-width bar for a ratio in [0, 1].
func Gauge(ratio float64) string {
	filled := int(ratio*gaugeWidth + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > gaugeWidth {
		filled = gaugeWidth
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", gaugeWidth-filled) + "]"
}

func led(on bool) string {
	if on {
		return ledOn.Sprint("● ON ")
	}
	return ledOff.Sprint("● OFF")
}

func phase(p models.Phase) string {
	switch {
	case p.Failed():
		return failed.Sprint(string(p))
	case p == models.PhaseRunning:
		return running.Sprint(string(p))
	default:
		return warn.Sprint(string(p))
	}
}
