package security

import (
	"net/netip"
	"time"
)

// Detection reason strings, stable for downstream alerting.
const (
	ReasonRapidAttempts     = "rapid attempts"
	ReasonMultipleIPs       = "multiple IPs"
	ReasonMultipleDevices   = "multiple devices"
	ReasonSuspiciousAddress = "suspicious address"
	ReasonHighFailureRate   = "high failure rate"
)

const (
	rapidAttemptWindow    = 5 * time.Minute
	rapidAttemptThreshold = 10
	distinctIPThreshold   = 3
	distinctSigThreshold  = 2
	failureRateThreshold  = 0.8
	failureRateMinSample  = 5
)

// Report is the advisory outcome of anomaly evaluation. Detection never
// blocks a login; a suspicious report only triggers a security event.
type Report struct {
	Suspicious bool
	Reasons    []string
}

// Evaluate inspects a window of recent attempts for suspicious patterns.
// Pure function: no mutation, no I/O. All rules fire independently and
// reasons accumulate.
func Evaluate(attempts []Attempt, now time.Time) Report {
	if len(attempts) == 0 {
		return Report{}
	}

	var report Report
	addReason := func(reason string) {
		report.Suspicious = true
		report.Reasons = append(report.Reasons, reason)
	}

	rapid := 0
	cutoff := now.Add(-rapidAttemptWindow)
	addresses := make(map[string]struct{})
	signatures := make(map[string]struct{})
	failures := 0
	suspiciousAddr := false

	for _, a := range attempts {
		if a.Time.After(cutoff) {
			rapid++
		}
		if a.SourceAddress != "" {
			addresses[a.SourceAddress] = struct{}{}
			if isReservedAddress(a.SourceAddress) {
				suspiciousAddr = true
			}
		}
		if a.ClientSignature != "" {
			signatures[a.ClientSignature] = struct{}{}
		}
		if !a.Success {
			failures++
		}
	}

	if rapid > rapidAttemptThreshold {
		addReason(ReasonRapidAttempts)
	}
	if len(addresses) > distinctIPThreshold {
		addReason(ReasonMultipleIPs)
	}
	if len(signatures) > distinctSigThreshold {
		addReason(ReasonMultipleDevices)
	}
	if suspiciousAddr {
		addReason(ReasonSuspiciousAddress)
	}
	if len(attempts) > failureRateMinSample &&
		float64(failures)/float64(len(attempts)) > failureRateThreshold {
		addReason(ReasonHighFailureRate)
	}

	return report
}

// isReservedAddress reports whether the address falls in a private,
// loopback or otherwise reserved range. Such sources behind the public edge
// usually indicate spoofed headers or proxy misconfiguration.
func isReservedAddress(address string) bool {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}
