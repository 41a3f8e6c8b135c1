// Package animation computes the per-frame visual parameters of the caption
// card. Everything here is a pure function of the frame index and the
// composition length.
package animation

// Timing constants, in frames.
const (
	FadeFrames  = 30
	ScaleFrames = 30
)

// Scale endpoints of the entrance zoom.
const (
	ScaleStart = 0.8
	ScaleEnd   = 1.0
)

// Params are the visual parameters for one frame.
type Params struct {
	Opacity float64 `json:"opacity"`
	Scale   float64 `json:"scale"`
}

// Evaluate returns the caption parameters for frame of a composition that is
// durationInFrames long.
//
// Opacity fades in over the first FadeFrames frames and out over the last
// FadeFrames frames. Scale grows from ScaleStart to ScaleEnd over the first
// ScaleFrames frames. The frame is clamped to [0, durationInFrames]; a
// negative duration is treated as zero.
//
// For durations under 2*FadeFrames the fade-out breakpoint lands before the
// fade-in one. Breakpoints are then flattened onto the later of the two (see
// Interpolate), so the card holds full opacity from frame FadeFrames and fades
// out over whatever remains. When durationInFrames is below FadeFrames the
// composition ends inside the fade-in: there is no fade-out and the last
// frame has opacity durationInFrames/FadeFrames.
func Evaluate(frame, durationInFrames int) Params {
	d := durationInFrames
	if d < 0 {
		d = 0
	}
	f := frame
	if f < 0 {
		f = 0
	}
	if f > d {
		f = d
	}
	x := float64(f)
	df := float64(d)

	opacity := Interpolate(x,
		[]float64{0, FadeFrames, df - FadeFrames, df},
		[]float64{0, 1, 1, 0},
	)
	scale := Interpolate(x,
		[]float64{0, ScaleFrames},
		[]float64{ScaleStart, ScaleEnd},
	)
	return Params{Opacity: opacity, Scale: scale}
}

// Interpolate maps x through the piecewise-linear function defined by the
// breakpoints in and the values out. len(in) must equal len(out) and be at
// least one; otherwise Interpolate returns 0.
//
// x outside [in[0], in[last]] is clamped to the nearest end value. A
// breakpoint lower than the one before it is raised to that one, producing a
// zero-width segment. The function is right-continuous: when several
// breakpoints share x, the value of the last of them is returned.
func Interpolate(x float64, in, out []float64) float64 {
	n := len(in)
	if n == 0 || n != len(out) {
		return 0
	}

	pts := make([]float64, n)
	pts[0] = in[0]
	for i := 1; i < n; i++ {
		pts[i] = in[i]
		if pts[i] < pts[i-1] {
			pts[i] = pts[i-1]
		}
	}

	if x < pts[0] {
		return out[0]
	}
	seg := 0
	for i := n - 1; i >= 0; i-- {
		if pts[i] <= x {
			seg = i
			break
		}
	}
	if seg == n-1 {
		return out[n-1]
	}

	lo, hi := pts[seg], pts[seg+1]
	t := (x - lo) / (hi - lo)
	return out[seg] + (out[seg+1]-out[seg])*t
}

// Sequence evaluates every frame of a composition, index 0 through
// durationInFrames-1.
func Sequence(durationInFrames int) []Params {
	if durationInFrames <= 0 {
		return nil
	}
	out := make([]Params, durationInFrames)
	for i := range out {
		out[i] = Evaluate(i, durationInFrames)
	}
	return out
}
