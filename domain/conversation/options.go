package conversation

import "fmt"

// AnalyzerOptions configures one analysis turn. All values are contract
// defaults and may be overridden per call; nothing is hard-coded elsewhere.
// AlphaMix and MMRLambda are pointers because zero is a meaningful setting
// for both; nil means "use the default".
type AnalyzerOptions struct {
	// K is the window size of recent candidates evaluated per turn, and
	// the requested size of the final important list.
	K int `json:"k"`
	// HalfLifeTurns is the decay half-life in turn-count for local
	// dependencies; topic and global classes derive slower curves.
	HalfLifeTurns float64 `json:"half_life_turns"`
	// NullSamples is the number of randomized trials per candidate used to
	// build the null distribution.
	NullSamples int `json:"null_samples"`
	// FDRAlpha is the Benjamini-Hochberg false-discovery-rate threshold.
	FDRAlpha float64 `json:"fdr_alpha"`
	// ZThreshold, when set, is an auxiliary robust-z significance gate
	// applied on top of the FDR decision.
	ZThreshold *float64 `json:"z_threshold,omitempty"`
	// AlphaMix blends the locally-computed score with the anchor-derived
	// score, in [0,1]. 1 = local only, 0 = anchor only.
	AlphaMix *float64 `json:"alpha_mix,omitempty"`
	// MMRLambda is the relevance-vs-diversity trade-off, in [0,1].
	// 1 = pure relevance, 0 = pure diversity.
	MMRLambda *float64 `json:"mmr_lambda,omitempty"`
	// Seed fixes the null-sample randomness for reproducible runs.
	// Zero means unseeded (production behavior).
	Seed int64 `json:"seed,omitempty"`
}

// Float returns a pointer to v, for setting the optional option fields.
func Float(v float64) *float64 {
	return &v
}

// DefaultOptions returns the contract defaults.
func DefaultOptions() AnalyzerOptions {
	return AnalyzerOptions{
		K:             6,
		HalfLifeTurns: 20,
		NullSamples:   8,
		FDRAlpha:      0.1,
		AlphaMix:      Float(0.6),
		MMRLambda:     Float(0.7),
	}
}

// WithDefaults returns o with every absent field filled from base. Absent
// means zero for the fields whose zero value is out of range anyway, and
// nil for the pointer fields, so an explicitly-set zero AlphaMix or
// MMRLambda survives.
func (o AnalyzerOptions) WithDefaults(base AnalyzerOptions) AnalyzerOptions {
	if o.K == 0 {
		o.K = base.K
	}
	if o.HalfLifeTurns == 0 {
		o.HalfLifeTurns = base.HalfLifeTurns
	}
	if o.NullSamples == 0 {
		o.NullSamples = base.NullSamples
	}
	if o.FDRAlpha == 0 {
		o.FDRAlpha = base.FDRAlpha
	}
	if o.ZThreshold == nil {
		o.ZThreshold = base.ZThreshold
	}
	if o.AlphaMix == nil {
		o.AlphaMix = base.AlphaMix
	}
	if o.MMRLambda == nil {
		o.MMRLambda = base.MMRLambda
	}
	if o.Seed == 0 {
		o.Seed = base.Seed
	}
	return o
}

// Validate fills absent fields from the contract defaults and checks
// ranges.
func (o *AnalyzerOptions) Validate() error {
	*o = o.WithDefaults(DefaultOptions())

	if o.K < 1 {
		return fmt.Errorf("k must be >= 1, got %d", o.K)
	}
	if o.HalfLifeTurns <= 0 {
		return fmt.Errorf("halfLifeTurns must be > 0, got %f", o.HalfLifeTurns)
	}
	if o.NullSamples < 2 {
		return fmt.Errorf("nullSamples must be >= 2, got %d", o.NullSamples)
	}
	if o.FDRAlpha <= 0 || o.FDRAlpha >= 1 {
		return fmt.Errorf("fdrAlpha must be in (0,1), got %f", o.FDRAlpha)
	}
	if *o.AlphaMix < 0 || *o.AlphaMix > 1 {
		return fmt.Errorf("alphaMix must be in [0,1], got %f", *o.AlphaMix)
	}
	if *o.MMRLambda < 0 || *o.MMRLambda > 1 {
		return fmt.Errorf("mmrLambda must be in [0,1], got %f", *o.MMRLambda)
	}
	return nil
}
