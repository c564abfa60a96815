package motion

// Axes holds the four control axes. Forward is +forward/-backward,
// Lateral is +right/-left, Vertical is +up/-down, Yaw is +clockwise.
type Axes struct {
	Forward  float64
	Lateral  float64
	Vertical float64
	Yaw      float64
}

// Add returns the componentwise sum.
func (a Axes) Add(b Axes) Axes {
	return Axes{
		Forward:  a.Forward + b.Forward,
		Lateral:  a.Lateral + b.Lateral,
		Vertical: a.Vertical + b.Vertical,
		Yaw:      a.Yaw + b.Yaw,
	}
}

// Scaled returns every axis multiplied by s.
func (a Axes) Scaled(s float64) Axes {
	return Axes{
		Forward:  a.Forward * s,
		Lateral:  a.Lateral * s,
		Vertical: a.Vertical * s,
		Yaw:      a.Yaw * s,
	}
}

// Clamped limits every axis to [-1, 1].
func (a Axes) Clamped() Axes {
	return Axes{
		Forward:  clampAxis(a.Forward),
		Lateral:  clampAxis(a.Lateral),
		Vertical: clampAxis(a.Vertical),
		Yaw:      clampAxis(a.Yaw),
	}
}

// IsZero reports whether every axis is exactly neutral.
func (a Axes) IsZero() bool {
	return a == Axes{}
}

func clampAxis(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
