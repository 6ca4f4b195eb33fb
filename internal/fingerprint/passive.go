package fingerprint

import "time"

// PassiveObservation is one TCP segment's identifying fields, fed in
// from an external capture source per §6 rather than collected by an
// active probe.
type PassiveObservation struct {
	TTL         uint8
	MSS         uint16
	Window      uint16
	DF          bool
	OptionKinds []uint8
	WindowScale uint8
	At          time.Time
}

// PassiveAccumulator folds a stream of PassiveObservations into the
// most-common-value summary the passive sub-vector reports; it holds
// no network state and performs no I/O itself.
type PassiveAccumulator struct {
	observations []PassiveObservation
}

// NewPassiveAccumulator returns an empty accumulator.
func NewPassiveAccumulator() *PassiveAccumulator {
	return &PassiveAccumulator{}
}

// Observe records one externally-captured segment.
func (p *PassiveAccumulator) Observe(obs PassiveObservation) {
	p.observations = append(p.observations, obs)
}

// Summarize produces the PassiveFeatures most-common-value vector, or
// nil if nothing was ever observed.
func (p *PassiveAccumulator) Summarize() *PassiveFeatures {
	if len(p.observations) == 0 {
		return nil
	}

	ttlCounts := map[uint8]int{}
	mssCounts := map[uint16]int{}
	winCounts := map[uint16]int{}
	dfTrue, dfFalse := 0, 0
	scaleCounts := map[uint8]int{}
	optionStrings := map[string]int{}

	var first, last time.Time
	for i, o := range p.observations {
		ttlCounts[o.TTL]++
		mssCounts[o.MSS]++
		winCounts[o.Window]++
		scaleCounts[o.WindowScale]++
		if o.DF {
			dfTrue++
		} else {
			dfFalse++
		}
		optionStrings[optionKindsKey(o.OptionKinds)]++

		if i == 0 || o.At.Before(first) {
			first = o.At
		}
		if i == 0 || o.At.After(last) {
			last = o.At
		}
	}

	f := &PassiveFeatures{
		Samples:          len(p.observations),
		MostCommonTTL:    mostCommonUint8(ttlCounts),
		MostCommonMSS:    mostCommonUint16(mssCounts),
		MostCommonWindow: mostCommonUint16(winCounts),
		MostCommonDF:     dfTrue >= dfFalse,
		OptionString:     mostCommonString(optionStrings),
		WindowScale:      mostCommonUint8(scaleCounts),
	}
	if last.After(first) {
		f.EstimatedUptime = last.Sub(first)
	}
	return f
}

func optionKindsKey(kinds []uint8) string {
	s := make([]byte, 0, len(kinds)*2)
	for _, k := range kinds {
		s = append(s, 'k', k)
	}
	return string(s)
}

func mostCommonUint8(counts map[uint8]int) uint8 {
	var best uint8
	bestCount := -1
	for k, v := range counts {
		if v > bestCount {
			best, bestCount = k, v
		}
	}
	return best
}

func mostCommonUint16(counts map[uint16]int) uint16 {
	var best uint16
	bestCount := -1
	for k, v := range counts {
		if v > bestCount {
			best, bestCount = k, v
		}
	}
	return best
}

func mostCommonString(counts map[string]int) string {
	var best string
	bestCount := -1
	for k, v := range counts {
		if v > bestCount {
			best, bestCount = k, v
		}
	}
	return best
}
