package costengine

// ModelPricing holds per-token prices in USD per 1M tokens, the unit the
// upstream vendor quotes prices in. Internally every cost is converted
// to millicents (1/100000 of a dollar) to avoid float drift across many
// small additions.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// millicentsPerDollar is the internal monetary unit's scale.
const millicentsPerDollar = 100_000

func (p ModelPricing) inputMillicentsPerToken() float64 {
	return p.InputPer1M / 1_000_000 * millicentsPerDollar
}

func (p ModelPricing) outputMillicentsPerToken() float64 {
	return p.OutputPer1M / 1_000_000 * millicentsPerDollar
}
