package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// Namespace prefixes every exported metric name.
const Namespace = "goidentity"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

var help = map[goIdentity.MetricID]string{
	goIdentity.MetricLoginSuccess:                "Successful logins.",
	goIdentity.MetricLoginFailure:                "Rejected logins.",
	goIdentity.MetricLoginRateLimited:            "Logins refused by the per-address rate limit.",
	goIdentity.MetricLockoutTriggered:            "Accounts locked after repeated failures.",
	goIdentity.MetricRefreshSuccess:              "Successful refresh token rotations.",
	goIdentity.MetricRefreshFailure:              "Rejected refresh attempts.",
	goIdentity.MetricRefreshReuseDetected:        "Refresh tokens presented after rotation.",
	goIdentity.MetricRateLimitHit:                "Requests refused by a rate limit.",
	goIdentity.MetricSessionCreated:              "Sessions opened.",
	goIdentity.MetricSessionInvalidated:          "Sessions revoked.",
	goIdentity.MetricLogout:                      "Single session logouts.",
	goIdentity.MetricLogoutAll:                   "Logouts of every session of a user.",
	goIdentity.MetricAccountCreationSuccess:      "Accounts created.",
	goIdentity.MetricAccountCreationDuplicate:    "Account creations rejected for an existing email.",
	goIdentity.MetricPasswordResetRequest:        "Password reset requests.",
	goIdentity.MetricPasswordResetConfirmSuccess: "Completed password resets.",
	goIdentity.MetricPasswordResetConfirmFailure: "Rejected password reset confirmations.",
	goIdentity.MetricEmailVerificationRequest:    "Email verification requests.",
	goIdentity.MetricEmailVerificationSuccess:    "Completed email verifications.",
	goIdentity.MetricEmailVerificationFailure:    "Rejected email verifications.",
	goIdentity.MetricAccountDisabled:             "Accounts disabled.",
	goIdentity.MetricAccountEnabled:              "Accounts enabled.",
	goIdentity.MetricAccountUnlocked:             "Lockouts lifted by an operator.",
	goIdentity.MetricValidateSuccess:             "Access tokens accepted.",
	goIdentity.MetricValidateFailure:             "Access tokens rejected.",
	goIdentity.MetricSweepRun:                    "Housekeeping sweeps started.",
	goIdentity.MetricSweepFailure:                "Housekeeping sweeps that failed.",
}

// CounterDefs lists every counter exported by the engine.
var CounterDefs = buildCounterDefs()

func buildCounterDefs() []CounterDef {
	ids := goIdentity.CounterIDs()
	defs := make([]CounterDef, 0, len(ids))
	for _, id := range ids {
		defs = append(defs, CounterDef{
			ID:   id,
			Name: Namespace + "_" + goIdentity.MetricName(id) + "_total",
			Help: help[id],
		})
	}
	return defs
}

// HistogramDefs lists the engine histograms.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricValidateLatency, Name: Namespace + "_validate_latency_seconds", Help: "ValidateAccess latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = Namespace + "_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// BucketCount is the number of latency buckets including +Inf.
const BucketCount = len(goIdentity.HistogramBounds) + 1

// HistogramBoundSuffix names each bucket for backends without labels.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
