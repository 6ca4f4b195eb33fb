package fingerprint

import (
	"errors"
	"math"
	"net"
	"time"

	"github.com/netrecon/netrecon/internal/packet"
)

// timestampSample is one (local send time, remote TSval) pair taken
// from a TCP timestamp-option exchange.
type timestampSample struct {
	localUs int64
	remote  uint32
}

// collectClockSkew sends TCP timestamp-option probes to an open port
// over up to 30 seconds, fitting t_r = m*t_l + b by ordinary least
// squares across the collected samples. skew_ppm is (m-1)*1e6.
// Confidence combines fit tightness with sample count per
// 0.7*(1/(1+stddev/100)) + 0.3*min(K/30,1); fewer than min_samples=10
// samples reports InsufficientData instead of a fit.
func (c *Collector) collectClockSkew(src, dst net.IP, openPort uint16) (*ClockSkew, error) {
	minSamples := 10
	target := int(c.opts.ClockSkewSamples)
	if target < minSamples {
		target = 20
	}

	sock, err := packet.OpenRaw(packet.RawProtoTCP)
	if err != nil {
		return nil, err
	}
	defer sock.Close()

	deadline := time.Now().Add(30 * time.Second)
	var samples []timestampSample

	for len(samples) < target && time.Now().Before(deadline) {
		if c.tc != nil {
			if err := c.tc.Acquire(c.ctx); err != nil {
				break
			}
		}
		sample, err := c.timestampProbe(sock, src, dst, openPort)
		if err == nil && sample != nil {
			samples = append(samples, *sample)
		}
		time.Sleep(200 * time.Millisecond)
	}

	if len(samples) < minSamples {
		return &ClockSkew{Samples: len(samples), InsufficientData: true}, nil
	}

	m, b, stddev := olsFit(samples)
	_ = b
	skewPPM := (m - 1) * 1e6
	confidence := 0.7*(1/(1+stddev/100)) + 0.3*math.Min(float64(len(samples))/30, 1)

	return &ClockSkew{
		SkewPPM:          skewPPM,
		EstimatedFreqHz:  1000 * m,
		ResidualStdDev:   stddev,
		Confidence:       confidence,
		Samples:          len(samples),
		InsufficientData: false,
	}, nil
}

func (c *Collector) timestampProbe(sock packet.RawSocket, src, dst net.IP, port uint16) (*timestampSample, error) {
	srcPort := uint16(1024 + int(time.Now().UnixNano()%64000))
	tsval := uint32(time.Now().UnixMilli())
	opts := []packet.TCPOption{
		{Kind: packet.OptTimestamp, Data: encodeTimestampOption(tsval, 0)},
	}
	seg, err := packet.BuildTCP(src, dst, srcPort, port, 1000, 0, packet.FlagSYN, 65535, opts, nil)
	if err != nil {
		return nil, err
	}
	ipPkt, err := packet.BuildIPv4(src, dst, int(packet.RawProtoTCP), 64, int(tsval%65536), true, seg)
	if err != nil {
		return nil, err
	}
	sendUs := time.Now().UnixMicro()
	if err := sock.Send(dst, ipPkt); err != nil {
		return nil, err
	}

	buf := make([]byte, 1500)
	n, _, err := sock.Recv(buf, c.opts.ProbeTimeout)
	if errors.Is(err, packet.ErrTimeout) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	pkt, err := packet.ParseIPv4(buf[:n])
	if err != nil {
		return nil, err
	}
	reply, ok := pkt.Payload.(*packet.TCPSegment)
	if !ok || reply.SrcPort != port || reply.DstPort != srcPort {
		return nil, errors.New("not a matching reply")
	}
	for _, opt := range reply.Options {
		if opt.Kind == packet.OptTimestamp && len(opt.Data) == 8 {
			remoteTS := uint32(opt.Data[0])<<24 | uint32(opt.Data[1])<<16 | uint32(opt.Data[2])<<8 | uint32(opt.Data[3])
			return &timestampSample{localUs: sendUs, remote: remoteTS}, nil
		}
	}
	return nil, errors.New("reply carried no timestamp option")
}

func encodeTimestampOption(tsval, tsecr uint32) []byte {
	d := make([]byte, 8)
	d[0], d[1], d[2], d[3] = byte(tsval>>24), byte(tsval>>16), byte(tsval>>8), byte(tsval)
	d[4], d[5], d[6], d[7] = byte(tsecr>>24), byte(tsecr>>16), byte(tsecr>>8), byte(tsecr)
	return d
}

// olsFit fits remote = m*local + b by ordinary least squares, with
// local and remote both rebased to the first sample to keep the
// regressors well-scaled, and returns the residual standard deviation.
func olsFit(samples []timestampSample) (m, b, stddev float64) {
	n := float64(len(samples))
	t0 := samples[0].localUs
	r0 := float64(samples[0].remote)

	var sumX, sumY, sumXY, sumXX float64
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		x := float64(s.localUs-t0) / 1000.0 // ms
		y := float64(s.remote) - r0
		xs[i], ys[i] = x, y
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 1, 0, 0
	}
	m = (n*sumXY - sumX*sumY) / denom
	b = (sumY - m*sumX) / n

	var sumSq float64
	for i := range xs {
		resid := ys[i] - (m*xs[i] + b)
		sumSq += resid * resid
	}
	stddev = math.Sqrt(sumSq / n)
	return m, b, stddev
}
