package aggregate

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithSampleSize sets the weight of the top sample.
func WithSampleSize(size float64) Option {
	return func(a *Aggregator) {
		if size > 0 {
			a.sampleSize = size
		}
	}
}

// WithDiminisher replaces the diminishing-returns step.
func WithDiminisher(d Diminisher) Option {
	return func(a *Aggregator) {
		if d != nil {
			a.diminisher = d
		}
	}
}

// WithGameDecay diminishes repeated runs of the same game by decay.
func WithGameDecay(decay float64) Option {
	return func(a *Aggregator) {
		if decay > 0 && decay <= 1 {
			a.diminisher = GameDecay{Decay: decay}
		}
	}
}
