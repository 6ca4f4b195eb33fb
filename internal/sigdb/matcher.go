package sigdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/netrecon/netrecon/internal/fingerprint"
	"github.com/netrecon/netrecon/internal/models"
	"github.com/netrecon/netrecon/internal/packet"
)

// MatchOptions tunes the fuzzy matcher; zero value uses the documented
// defaults.
type MatchOptions struct {
	Threshold float64 // default 0.5, §4.G
}

func (o *MatchOptions) applyDefaults() {
	if o.Threshold <= 0 {
		o.Threshold = 0.5
	}
}

// category weights from §4.G: "raw = 0.35*tcp + 0.25*icmp + 0.15*udp +
// 0.15*protocol + 0.10*clock, using only populated categories; weights
// renormalize to 1."
const (
	weightTCP      = 0.35
	weightICMP     = 0.25
	weightUDP      = 0.15
	weightProtocol = 0.15
	weightClock    = 0.10
)

var optKindNames = map[uint8]string{
	packet.OptEndOfList:     "eol",
	packet.OptNOP:           "nop",
	packet.OptMSS:           "mss",
	packet.OptWindowScale:   "window_scale",
	packet.OptSACKPermitted: "sack_permitted",
	packet.OptTimestamp:     "timestamp",
}

func optionOrderNames(kinds []uint8) []string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if n, ok := optKindNames[k]; ok {
			names = append(names, n)
		} else {
			names = append(names, fmt.Sprintf("opt%d", k))
		}
	}
	return names
}

// lcsRatio returns the longest-common-subsequence length of a and b as
// a fraction of the longer sequence's length, in [0,1] (§4.G "TCP
// option order: longest-common-subsequence ratio").
func lcsRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == 0 && len(b) == 0 {
			return 1.0
		}
		return 0.0
	}
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(dp[len(a)][len(b)]) / float64(longest)
}

func withinPercent(got, want uint32, pct float64) bool {
	if want == 0 {
		return got == 0
	}
	delta := float64(got) - float64(want)
	if delta < 0 {
		delta = -delta
	}
	return delta <= float64(want)*pct
}

func withinAbs(got, want int, tol int) bool {
	delta := got - want
	if delta < 0 {
		delta = -delta
	}
	return delta <= tol
}

// tcpSubScore implements §4.G's TCP tolerance table as an equal-weight
// average across the features the signature actually specifies.
func tcpSubScore(sig *TCPSignature, f *fingerprint.TCPFeatures) (float64, []string, []string) {
	if sig == nil || f == nil {
		return 0, nil, nil
	}
	var scores []float64
	var matched, mismatched []string

	ttl := int(f.InitialTTL)
	lo, hi := int(sig.TTLRange[0]), int(sig.TTLRange[1])
	switch {
	case ttl >= lo && ttl <= hi:
		scores = append(scores, 1.0)
		matched = append(matched, fmt.Sprintf("TTL: %d (expected %d-%d)", ttl, lo, hi))
	case withinAbs(ttl, lo, 10) || withinAbs(ttl, hi, 10):
		scores = append(scores, 0.5)
		matched = append(matched, fmt.Sprintf("TTL: %d (expected ~%d-%d)", ttl, lo, hi))
	default:
		scores = append(scores, 0.0)
		mismatched = append(mismatched, fmt.Sprintf("TTL: %d (expected %d-%d)", ttl, lo, hi))
	}

	wLo, wHi := sig.WindowSizeRange[0], sig.WindowSizeRange[1]
	w := uint32(f.WindowSize)
	switch {
	case w >= wLo && w <= wHi:
		scores = append(scores, 1.0)
		matched = append(matched, fmt.Sprintf("window: %d (expected %d-%d)", w, wLo, wHi))
	case withinPercent(w, wLo, 0.2) || withinPercent(w, wHi, 0.2):
		scores = append(scores, 0.6)
		matched = append(matched, fmt.Sprintf("window: %d (expected ~%d-%d)", w, wLo, wHi))
	default:
		scores = append(scores, 0.0)
		mismatched = append(mismatched, fmt.Sprintf("window: %d (expected %d-%d)", w, wLo, wHi))
	}

	if sig.TypicalMSS != nil {
		want := int(*sig.TypicalMSS)
		got := int(f.MSS)
		switch {
		case got == want:
			scores = append(scores, 1.0)
			matched = append(matched, fmt.Sprintf("MSS: %d (expected %d)", got, want))
		case withinAbs(got, want, 100):
			scores = append(scores, 0.7)
			matched = append(matched, fmt.Sprintf("MSS: %d (expected ≈%d)", got, want))
		default:
			scores = append(scores, 0.0)
			mismatched = append(mismatched, fmt.Sprintf("MSS: %d (expected ≈%d)", got, want))
		}
	}

	if sig.DFFlag != nil {
		if *sig.DFFlag == f.DF {
			scores = append(scores, 1.0)
			matched = append(matched, fmt.Sprintf("DF: %v (expected %v)", f.DF, *sig.DFFlag))
		} else {
			scores = append(scores, 0.0)
			mismatched = append(mismatched, fmt.Sprintf("DF: %v (expected %v)", f.DF, *sig.DFFlag))
		}
	}

	if len(sig.TCPOptionOrder) > 0 {
		got := optionOrderNames(f.OptionOrder)
		ratio := lcsRatio(got, sig.TCPOptionOrder)
		scores = append(scores, ratio)
		detail := fmt.Sprintf("option order: %s (expected %s)", strings.Join(got, ","), strings.Join(sig.TCPOptionOrder, ","))
		if ratio >= 0.75 {
			matched = append(matched, detail)
		} else {
			mismatched = append(mismatched, detail)
		}
	}

	return average(scores), matched, mismatched
}

func icmpSubScore(sig *ICMPSignature, f *fingerprint.ICMPFeatures) (float64, []string, []string) {
	if sig == nil || f == nil {
		return 0, nil, nil
	}
	var scores []float64
	var matched, mismatched []string

	if sig.EchoesFullPayload != nil {
		if *sig.EchoesFullPayload == f.EchoesFullPayload {
			scores = append(scores, 1.0)
			matched = append(matched, fmt.Sprintf("echoes full payload: %v", f.EchoesFullPayload))
		} else {
			scores = append(scores, 0.0)
			mismatched = append(mismatched, fmt.Sprintf("echoes full payload: %v (expected %v)", f.EchoesFullPayload, *sig.EchoesFullPayload))
		}
	}
	if sig.AnswersTimestampReq != nil {
		if *sig.AnswersTimestampReq == f.AnswersTimestampReq {
			scores = append(scores, 1.0)
			matched = append(matched, fmt.Sprintf("answers timestamp request: %v", f.AnswersTimestampReq))
		} else {
			scores = append(scores, 0.0)
			mismatched = append(mismatched, fmt.Sprintf("answers timestamp request: %v (expected %v)", f.AnswersTimestampReq, *sig.AnswersTimestampReq))
		}
	}
	if sig.RateLimitPattern != nil {
		if *sig.RateLimitPattern == string(f.BurstPattern) {
			scores = append(scores, 1.0)
			matched = append(matched, fmt.Sprintf("ICMP burst pattern: %s", f.BurstPattern))
		} else {
			scores = append(scores, 0.0)
			mismatched = append(mismatched, fmt.Sprintf("ICMP burst pattern: %s (expected %s)", f.BurstPattern, *sig.RateLimitPattern))
		}
	}
	return average(scores), matched, mismatched
}

func udpSubScore(sig *UDPSignature, f *fingerprint.UDPFeatures) (float64, []string, []string) {
	if sig == nil || f == nil || sig.ResponsePattern == nil {
		return 0, nil, nil
	}
	if *sig.ResponsePattern == string(f.BurstPattern) {
		return 1.0, []string{fmt.Sprintf("UDP response pattern: %s", f.BurstPattern)}, nil
	}
	return 0.0, nil, []string{fmt.Sprintf("UDP response pattern: %s (expected %s)", f.BurstPattern, *sig.ResponsePattern)}
}

func protocolSubScore(sig *ProtocolHints, f *fingerprint.ProtocolHints) (float64, []string, []string) {
	if sig == nil || f == nil {
		return 0, nil, nil
	}
	var scores []float64
	var matched, mismatched []string
	check := func(hint, got, label string) {
		if hint == "" {
			return
		}
		if strings.Contains(strings.ToLower(got), strings.ToLower(hint)) {
			scores = append(scores, 1.0)
			matched = append(matched, fmt.Sprintf("%s contains %q", label, hint))
		} else {
			scores = append(scores, 0.0)
			mismatched = append(mismatched, fmt.Sprintf("%s %q does not contain %q", label, got, hint))
		}
	}
	check(sig.SSHBannerHint, f.SSHBanner, "SSH banner")
	check(sig.HTTPServerHint, f.HTTPServer, "HTTP Server header")
	check(sig.SMBOSHint, f.SMBOSString, "SMB OS string")
	return average(scores), matched, mismatched
}

func clockSubScore(class ClockFreqClass, skew *fingerprint.ClockSkew) (float64, []string, []string) {
	if class == 0 || skew == nil || skew.InsufficientData {
		return 0, nil, nil
	}
	want := float64(class)
	got := skew.EstimatedFreqHz
	delta := got - want
	if delta < 0 {
		delta = -delta
	}
	ratio := delta / want
	detail := fmt.Sprintf("clock frequency: %.1fHz (expected ~%.0fHz)", got, want)
	switch {
	case ratio <= 0.05:
		return 1.0, []string{detail}, nil
	case ratio <= 0.20:
		return 0.5, []string{detail}, nil
	default:
		return 0.0, nil, []string{detail}
	}
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// score computes one signature's total score and feature notes against
// fp, per §4.G's weighted-category combination.
func score(sig OsSignature, fp *fingerprint.OsFingerprint) (total float64, matched, mismatched []string, coverage map[string]bool) {
	coverage = map[string]bool{
		"tcp": fp.TCPFeatures != nil, "icmp": fp.ICMPFeatures != nil,
		"udp": fp.UDPFeatures != nil, "protocol": fp.ProtocolHints != nil,
		"clock": fp.ClockSkew != nil && !fp.ClockSkew.InsufficientData,
	}

	type term struct {
		weight float64
		score  float64
		active bool
	}
	var terms []term

	if fp.TCPFeatures != nil && sig.TCP != nil {
		s, m, mm := tcpSubScore(sig.TCP, fp.TCPFeatures)
		matched = append(matched, m...)
		mismatched = append(mismatched, mm...)
		terms = append(terms, term{weightTCP, s, true})
	}
	if fp.ICMPFeatures != nil && sig.ICMP != nil {
		s, m, mm := icmpSubScore(sig.ICMP, fp.ICMPFeatures)
		matched = append(matched, m...)
		mismatched = append(mismatched, mm...)
		terms = append(terms, term{weightICMP, s, true})
	}
	if fp.UDPFeatures != nil && sig.UDP != nil {
		s, m, mm := udpSubScore(sig.UDP, fp.UDPFeatures)
		matched = append(matched, m...)
		mismatched = append(mismatched, mm...)
		terms = append(terms, term{weightUDP, s, true})
	}
	if fp.ProtocolHints != nil && sig.Protocol != nil {
		s, m, mm := protocolSubScore(sig.Protocol, fp.ProtocolHints)
		matched = append(matched, m...)
		mismatched = append(mismatched, mm...)
		terms = append(terms, term{weightProtocol, s, true})
	}
	if fp.ClockSkew != nil && !fp.ClockSkew.InsufficientData && sig.ClockFreqClass != 0 {
		s, m, mm := clockSubScore(sig.ClockFreqClass, fp.ClockSkew)
		matched = append(matched, m...)
		mismatched = append(mismatched, mm...)
		terms = append(terms, term{weightClock, s, true})
	}

	var weightSum, raw float64
	for _, t := range terms {
		if t.active {
			weightSum += t.weight
			raw += t.weight * t.score
		}
	}
	if weightSum > 0 {
		raw /= weightSum
	}
	total = raw * sig.ConfidenceWeight
	return total, matched, mismatched, coverage
}

// Match scores fp against every signature in db and ranks the results
// (§4.G). Per the thresholding invariant in §8, Match(fp, 0.0) always
// scores every candidate; threshold only filters MatchScores, never
// recomputes the best.
func Match(db *Database, fp *fingerprint.OsFingerprint, opts MatchOptions) models.MatchResult {
	opts.applyDefaults()

	all := make([]models.SignatureMatch, 0, len(db.Signatures))
	var coverage map[string]bool
	for _, sig := range db.Signatures {
		total, matched, mismatched, cov := score(sig, fp)
		coverage = cov
		all = append(all, models.SignatureMatch{
			OSName:     sig.OSName,
			OSVersion:  sig.OSVersion,
			Total:      total,
			Confidence: models.LabelFor(total),
			Matched:    matched,
			Mismatched: mismatched,
		})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Total > all[j].Total })

	var best *models.SignatureMatch
	if len(all) > 0 {
		b := all[0]
		best = &b
	}

	closest := all
	if len(closest) > 5 {
		closest = closest[:5]
	}

	var aboveThreshold []models.SignatureMatch
	dist := map[models.ConfidenceLabel]int{
		models.ConfidenceCertain: 0, models.ConfidenceHigh: 0,
		models.ConfidenceMedium: 0, models.ConfidenceLow: 0,
	}
	for _, m := range all {
		dist[m.Confidence]++
		if m.Total >= opts.Threshold {
			aboveThreshold = append(aboveThreshold, m)
		}
	}

	return models.MatchResult{
		BestMatch:               best,
		ClosestMatches:          closest,
		MatchScores:             aboveThreshold,
		ConfidenceDistribution:  dist,
		FeatureCoverage:         coverage,
	}
}
