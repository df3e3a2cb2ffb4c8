package emac

import "strings"

// InterruptStatus is the decoded content of the DMA status register.
type InterruptStatus struct {
	TxComplete          bool // TS
	TxProcessStopped    bool // TPS
	TxBufferUnavailable bool // TBU
	TxJabberTimeout     bool // TJT
	RxOverflow          bool // ROS
	TxUnderflow         bool // TUS
	RxComplete          bool // RS
	RxBufferUnavailable bool // RBU
	RxProcessStopped    bool // RPS
	RxWatchdogTimeout   bool // RWT
	EarlyTransmit       bool // ETS
	FatalBusError       bool // FBE
	EarlyReceive        bool // ERS
	AbnormalSummary     bool // AIS
	NormalSummary       bool // NIS
}

var statusBits = []struct {
	bit  uint32
	name string
	flag func(*InterruptStatus) *bool
}{
	{DMASR_TS, "tx", func(s *InterruptStatus) *bool { return &s.TxComplete }},
	{DMASR_TPS, "tx-stopped", func(s *InterruptStatus) *bool { return &s.TxProcessStopped }},
	{DMASR_TBU, "tx-unavail", func(s *InterruptStatus) *bool { return &s.TxBufferUnavailable }},
	{DMASR_TJT, "tx-jabber", func(s *InterruptStatus) *bool { return &s.TxJabberTimeout }},
	{DMASR_ROS, "rx-overflow", func(s *InterruptStatus) *bool { return &s.RxOverflow }},
	{DMASR_TUS, "tx-underflow", func(s *InterruptStatus) *bool { return &s.TxUnderflow }},
	{DMASR_RS, "rx", func(s *InterruptStatus) *bool { return &s.RxComplete }},
	{DMASR_RBU, "rx-unavail", func(s *InterruptStatus) *bool { return &s.RxBufferUnavailable }},
	{DMASR_RPS, "rx-stopped", func(s *InterruptStatus) *bool { return &s.RxProcessStopped }},
	{DMASR_RWT, "rx-watchdog", func(s *InterruptStatus) *bool { return &s.RxWatchdogTimeout }},
	{DMASR_ETS, "early-tx", func(s *InterruptStatus) *bool { return &s.EarlyTransmit }},
	{DMASR_FBE, "bus-error", func(s *InterruptStatus) *bool { return &s.FatalBusError }},
	{DMASR_ERS, "early-rx", func(s *InterruptStatus) *bool { return &s.EarlyReceive }},
	{DMASR_AIS, "abnormal", func(s *InterruptStatus) *bool { return &s.AbnormalSummary }},
	{DMASR_NIS, "normal", func(s *InterruptStatus) *bool { return &s.NormalSummary }},
}

// StatusMask covers the interrupt bits of DMASR. The remaining bits are
// read-only state fields.
const StatusMask = DMASR_TS | DMASR_TPS | DMASR_TBU | DMASR_TJT | DMASR_ROS |
	DMASR_TUS | DMASR_RS | DMASR_RBU | DMASR_RPS | DMASR_RWT | DMASR_ETS |
	DMASR_FBE | DMASR_ERS | DMASR_AIS | DMASR_NIS

// StatusFromRaw decodes a DMASR value. Bits outside StatusMask are
// ignored.
func StatusFromRaw(v uint32) InterruptStatus {
	var s InterruptStatus
	for _, b := range statusBits {
		*b.flag(&s) = v&b.bit != 0
	}
	return s
}

// ToRaw encodes the flags of s. Writing the result to DMASR clears
// exactly these bits.
func (s InterruptStatus) ToRaw() uint32 {
	var v uint32
	for _, b := range statusBits {
		if *b.flag(&s) {
			v |= b.bit
		}
	}
	return v
}

func (s InterruptStatus) Any() bool {
	return s != InterruptStatus{}
}

// HasError reports whether any abnormal condition is flagged.
func (s InterruptStatus) HasError() bool {
	return s.RxOverflow || s.TxUnderflow || s.FatalBusError ||
		s.TxJabberTimeout || s.RxWatchdogTimeout
}

func (s InterruptStatus) String() string {
	var b strings.Builder
	for _, f := range statusBits {
		if !*f.flag(&s) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(f.name)
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}
