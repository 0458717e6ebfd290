package camera

// EaseInOutCubic maps linear progress in [0,1] to eased progress in [0,1].
func EaseInOutCubic(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	case t < 0.5:
		return 4 * t * t * t
	default:
		f := -2*t + 2
		return 1 - f*f*f/2
	}
}
