package command

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/skysim-labs/dronepilot/pkg/vec"
)

// ErrUnknown marks tokens outside the command grammar.
var ErrUnknown = errors.New("unknown command")

// Speed multiplier clamp bounds in percent.
const (
	SpeedMinPercent = 10
	SpeedMaxPercent = 200
)

var (
	turnPattern  = regexp.MustCompile(`^turn_([0-9]+(?:\.[0-9]+)?)(?:_(left|right))?$`)
	speedPattern = regexp.MustCompile(`^speed_([0-9]+(?:\.[0-9]+)?)$`)
)

// verbs maps every accepted continuous verb, including aliases, to its
// canonical axis contribution. Aliases share the canonical Key so they
// refresh the same decay entry.
var verbs = map[string]VerbCommand{
	"move_forward":  {Key: "move_forward", Axis: AxisForward, Sign: 1},
	"move_backward": {Key: "move_backward", Axis: AxisForward, Sign: -1},
	"move_left":     {Key: "move_left", Axis: AxisLateral, Sign: -1},
	"move_right":    {Key: "move_right", Axis: AxisLateral, Sign: 1},
	"ascend":        {Key: "ascend", Axis: AxisVertical, Sign: 1},
	"go_up":         {Key: "ascend", Axis: AxisVertical, Sign: 1},
	"descend":       {Key: "descend", Axis: AxisVertical, Sign: -1},
	"go_down":       {Key: "descend", Axis: AxisVertical, Sign: -1},
	"turn_left":     {Key: "turn_left", Axis: AxisYaw, Sign: -1},
	"turn_right":    {Key: "turn_right", Axis: AxisYaw, Sign: 1},
}

// Parse turns one raw wire token into a Command. Matching follows a
// fixed precedence: degree turn, speed, navigate_to_position,
// move_to_coordinates, rotate_to, simple verbs, stop, go_to. Tokens are
// case-insensitive and whitespace-trimmed. Unknown tokens return
// ErrUnknown; malformed parameterized tokens return a descriptive
// error. Parse never panics.
func Parse(raw string) (Command, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	cmd := Command{Raw: trimmed}

	if lower == "" {
		return Command{}, fmt.Errorf("%w: empty token", ErrUnknown)
	}

	if m := turnPattern.FindStringSubmatch(lower); m != nil {
		deg, err := parseFiniteFloat(m[1])
		if err != nil {
			return Command{}, fmt.Errorf("turn degrees %q: %w", m[1], err)
		}
		cmd.Kind = KindTurn
		cmd.Turn = &TurnCommand{Degrees: deg, Direction: TurnDirection(m[2])}
		return cmd, nil
	}

	if m := speedPattern.FindStringSubmatch(lower); m != nil {
		pct, err := parseFiniteFloat(m[1])
		if err != nil {
			return Command{}, fmt.Errorf("speed percent %q: %w", m[1], err)
		}
		cmd.Kind = KindSpeed
		cmd.Speed = &SpeedCommand{Percent: clamp(pct, SpeedMinPercent, SpeedMaxPercent)}
		return cmd, nil
	}

	if rest, ok := strings.CutPrefix(lower, "navigate_to_position:"); ok {
		f, err := parseFloats(rest, 6)
		if err != nil {
			return Command{}, fmt.Errorf("navigate_to_position: %w", err)
		}
		lookAt := vec.Vec3{X: f[3], Y: f[4], Z: f[5]}
		cmd.Kind = KindNavigate
		cmd.Navigate = &NavigateCommand{
			Target: vec.Vec3{X: f[0], Y: f[1], Z: f[2]},
			LookAt: &lookAt,
		}
		return cmd, nil
	}

	if rest, ok := strings.CutPrefix(lower, "move_to_coordinates:"); ok {
		f, err := parseFloats(rest, 3)
		if err != nil {
			return Command{}, fmt.Errorf("move_to_coordinates: %w", err)
		}
		cmd.Kind = KindNavigate
		cmd.Navigate = &NavigateCommand{Target: vec.Vec3{X: f[0], Y: f[1], Z: f[2]}}
		return cmd, nil
	}

	if rest, ok := strings.CutPrefix(lower, "rotate_to:"); ok {
		f, err := parseFloats(rest, 4)
		if err != nil {
			return Command{}, fmt.Errorf("rotate_to: %w", err)
		}
		q := vec.Quat{X: f[0], Y: f[1], Z: f[2], W: f[3]}
		if q.Len() == 0 {
			return Command{}, errors.New("rotate_to: degenerate orientation")
		}
		cmd.Kind = KindOrient
		cmd.Orient = &OrientCommand{Orientation: q.Normalize()}
		return cmd, nil
	}

	if verb, ok := verbs[lower]; ok {
		cmd.Kind = KindVerb
		cmd.Verb = &verb
		return cmd, nil
	}

	// "hover in place" maps to stop upstream; accept the bare alias too.
	if lower == "stop" || lower == "hover" {
		cmd.Kind = KindStop
		return cmd, nil
	}

	if strings.HasPrefix(lower, "go_to:") {
		query := strings.TrimSpace(trimmed[len("go_to:"):])
		if query == "" {
			return Command{}, errors.New("go_to: empty target")
		}
		cmd.Kind = KindGoTo
		cmd.GoTo = &GoToCommand{Query: query}
		return cmd, nil
	}

	return Command{}, fmt.Errorf("%w: %q", ErrUnknown, trimmed)
}

// parseFloats splits a comma-separated argument list and requires
// exactly want finite numeric fields.
func parseFloats(args string, want int) ([]float64, error) {
	fields := strings.Split(args, ",")
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d fields, got %d", want, len(fields))
	}
	out := make([]float64, want)
	for i, field := range fields {
		f, err := parseFiniteFloat(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		out[i] = f
	}
	return out, nil
}

func parseFiniteFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
