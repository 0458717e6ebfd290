package layout

// Options configures the force simulation. Zero fields take the defaults below.
type Options struct {
	Iterations    int     // fixed number of ticks (default 300)
	InitialSpread float64 // half-width of the random start cube (default 10)

	MainLinkDistance float64 // rest length of links touching the main node (default 8)
	LinkDistance     float64 // rest length of other links (default 5)
	LinkStrength     float64 // default 0.5

	ChargeStrength     float64 // negative repels (default -80)
	ChargeDistanceMin  float64 // distances below this are softened (default 1)
	CenterStrength     float64 // centroid pull per tick, scaled by alpha (default 0.05)
	CollisionRadius    float64 // per-node radius (default 2)
	CollisionStrength  float64 // default 0.7
	VelocityDecay      float64 // fraction of velocity lost per tick (default 0.4)
	AlphaMin           float64 // alpha reached after Iterations ticks (default 0.001)
	CollisionTolerance float64 // slack used by the quality report (default 0.1)

	Seed uint64 // random source for the initial placement; 0 seeds from the clock
}

// DefaultOptions returns the default simulation parameters.
func DefaultOptions() Options {
	return Options{
		Iterations:         300,
		InitialSpread:      10,
		MainLinkDistance:   8,
		LinkDistance:       5,
		LinkStrength:       0.5,
		ChargeStrength:     -80,
		ChargeDistanceMin:  1,
		CenterStrength:     0.05,
		CollisionRadius:    2,
		CollisionStrength:  0.7,
		VelocityDecay:      0.4,
		AlphaMin:           0.001,
		CollisionTolerance: 0.1,
	}
}

func (o *Options) withDefaults() Options {
	d := DefaultOptions()
	if o == nil {
		return d
	}
	if o.Iterations > 0 {
		d.Iterations = o.Iterations
	}
	if o.InitialSpread != 0 {
		d.InitialSpread = o.InitialSpread
	}
	if o.MainLinkDistance != 0 {
		d.MainLinkDistance = o.MainLinkDistance
	}
	if o.LinkDistance != 0 {
		d.LinkDistance = o.LinkDistance
	}
	if o.LinkStrength != 0 {
		d.LinkStrength = o.LinkStrength
	}
	if o.ChargeStrength != 0 {
		d.ChargeStrength = o.ChargeStrength
	}
	if o.ChargeDistanceMin != 0 {
		d.ChargeDistanceMin = o.ChargeDistanceMin
	}
	if o.CenterStrength != 0 {
		d.CenterStrength = o.CenterStrength
	}
	if o.CollisionRadius != 0 {
		d.CollisionRadius = o.CollisionRadius
	}
	if o.CollisionStrength != 0 {
		d.CollisionStrength = o.CollisionStrength
	}
	if o.VelocityDecay != 0 {
		d.VelocityDecay = o.VelocityDecay
	}
	if o.AlphaMin != 0 {
		d.AlphaMin = o.AlphaMin
	}
	if o.CollisionTolerance != 0 {
		d.CollisionTolerance = o.CollisionTolerance
	}
	d.Seed = o.Seed
	return d
}
