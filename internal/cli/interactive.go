package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mixer-line/internal/config"
	"mixer-line/internal/controller"
	"mixer-line/internal/display"
	"mixer-line/internal/mission"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// InteractiveCmd returns the step-by-step tester. Time only moves when the
// operator asks for it.
func InteractiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Drive the controller tick by tick from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			s, err := newSession(cfg, logger, os.Stdout)
			if err != nil {
				return err
			}
			s.loop(os.Stdin)
			return nil
		},
	}
}

type session struct {
	runner   *mission.Runner
	clock    *controller.ManualClock
	interval time.Duration
	pending  time.Duration
	view     *display.Console
	out      io.Writer
	steps    int
}

func newSession(cfg *config.Config, logger *logrus.Logger, out io.Writer) (*session, error) {
	cc, err := cfg.ControllerConfig()
	if err != nil {
		return nil, err
	}

	clock := controller.NewManualClock(time.Now())
	ctrl, err := controller.New(cc, clock, logger)
	if err != nil {
		return nil, err
	}

	return &session{
		runner:   mission.NewRunner(ctrl, cfg, logger),
		clock:    clock,
		interval: cfg.Mission.TickInterval,
		view:     display.NewConsole(out),
		out:      out,
	}, nil
}

func (s *session) loop(in io.Reader) {
	fmt.Fprintln(s.out, "🧪 Mixing line interactive tester")
	fmt.Fprintln(s.out, "=================================")
	s.help()

	scanner := bufio.NewScanner(in)
	for {
		snap, _ := s.runner.Store().Get()
		fmt.Fprintf(s.out, "\n[Step %d | %s | vol %.1f] > ", s.steps, snap.Phase, snap.CurrentVolume)

		if !scanner.Scan() {
			return
		}
		if quit := s.execute(scanner.Text()); quit {
			fmt.Fprintln(s.out, "👋 Bye")
			return
		}
	}
}

// execute runs one operator line and reports whether the session should end.
func (s *session) execute(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return true
	case "help", "h":
		s.help()
	case "status", "s":
		snap, _ := s.runner.Store().Get()
		s.view.RenderDetail(snap)
	case "tick", "t":
		n := 1
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v < 1 {
				fmt.Fprintf(s.out, "❌ Invalid tick count: %s\n", fields[1])
				return false
			}
			n = v
		}
		s.tick(n)
	case "advance", "wait":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "❌ Usage: advance <seconds>")
			return false
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || secs < 0 {
			fmt.Fprintf(s.out, "❌ Invalid duration: %s\n", fields[1])
			return false
		}
		s.clock.Advance(time.Duration(secs * float64(time.Second)))
		fmt.Fprintf(s.out, "⏩ Clock moved %.1fs without a decision\n", secs)
	default:
		cmd, err := mission.ParseCommand([]byte(line))
		if err != nil {
			fmt.Fprintf(s.out, "❌ %v\n", err)
			return false
		}
		if err := s.runner.Apply(cmd); err != nil {
			fmt.Fprintf(s.out, "❌ %s: %v\n", cmd, err)
			return false
		}
		switch cmd.Kind {
		case mission.CommandStart, mission.CommandStop, mission.CommandReset:
			s.pending = 0
		}
		fmt.Fprintf(s.out, "✅ %s\n", cmd)
	}
	return false
}

// tick advances the clock by one interval, or by the pending replenish pause
// when it is longer, then asks for a decision.
func (s *session) tick(n int) {
	for i := 0; i < n; i++ {
		step := s.interval
		if s.pending > step {
			step = s.pending
		}
		s.clock.Advance(step)
		s.steps++

		s.pending = s.runner.Tick()
		snap, _ := s.runner.Store().Get()
		s.view.Render(snap)

		if !snap.Active {
			if snap.Phase.Failed() {
				fmt.Fprintf(s.out, "🛑 Mission stopped: %s\n", snap.LastError)
			}
			return
		}
	}
}

func (s *session) help() {
	fmt.Fprintln(s.out, "🎮 Commands:")
	fmt.Fprintln(s.out, "   start                  - Arm the mission")
	fmt.Fprintln(s.out, "   stop                   - Disarm the mission")
	fmt.Fprintln(s.out, "   reset                  - Restart the countdown with a full tank")
	fmt.Fprintln(s.out, "   set_mission_duration N - Set the mission length (s)")
	fmt.Fprintln(s.out, "   set_output_flow N      - Set the output flow")
	fmt.Fprintln(s.out, "   restock A B C          - Refill the three reservoirs")
	fmt.Fprintln(s.out, "   tick [n]               - Run n decisions (default 1)")
	fmt.Fprintln(s.out, "   advance N              - Move the clock N seconds without deciding")
	fmt.Fprintln(s.out, "   status                 - Show the full state")
	fmt.Fprintln(s.out, "   help                   - Show this help")
	fmt.Fprintln(s.out, "   quit                   - Leave")
}
