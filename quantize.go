package seqroll

import "math"

type (
	// Ratio is a note value given as numerator/denominator of a whole note,
	// e.g. {1, 16} is a sixteenth. The zero Ratio means "not given".
	Ratio struct {
		Num, Den int
	}

	// QuantizeMode selects which note properties QuantizeNotes snaps.
	QuantizeMode int

	// Quantization describes a quantize operation. End defaults to Start when
	// zero.
	Quantization struct {
		Start Ratio
		End   Ratio
		Mode  QuantizeMode
	}
)

const (
	QuantizeStart QuantizeMode = 1 << iota
	QuantizeEnd
	QuantizeLength
)

// Grid returns the grid size of the ratio in beats, or 0 for an invalid
// ratio.
func (r Ratio) Grid() float64 {
	if r.Num <= 0 || r.Den <= 0 {
		return 0
	}
	return float64(r.Num) * 4 / float64(r.Den)
}

// Snap rounds t to the nearest multiple of grid, halves rounding up. A
// non-positive grid leaves t unchanged.
func Snap(t, grid float64) float64 {
	if grid <= 0 {
		return t
	}
	return math.Floor(t/grid+0.5) * grid
}

// Quantize snaps beat-time t to a grid of num/den whole notes.
func Quantize(t float64, num, den int) float64 {
	return Snap(t, Ratio{num, den}.Grid())
}

func (m QuantizeMode) Has(flag QuantizeMode) bool { return m&flag != 0 }

func (q Quantization) grids() (start, end float64) {
	start = q.Start.Grid()
	end = q.End.Grid()
	if end == 0 {
		end = start
	}
	return
}

// apply returns the quantized start and end of a note. The end is never
// closer than MinimumLength to the start.
func (q Quantization) apply(start, end float64) (float64, float64) {
	gs, ge := q.grids()
	length := end - start
	if q.Mode.Has(QuantizeStart) {
		start = max(Snap(start, gs), 0)
	}
	switch {
	case q.Mode.Has(QuantizeEnd):
		end = Snap(end, ge)
	case q.Mode.Has(QuantizeLength):
		l := Snap(length, ge)
		if l <= 0 {
			l = ge
		}
		end = start + l
	default:
		end = start + length
	}
	return start, max(end, start+MinimumLength)
}
