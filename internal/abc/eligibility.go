package abc

import (
	"os"
	"strconv"
	"strings"
)

// Thresholds are the minimum payment amounts a member must exceed to qualify
// for the target contract. Runtime-configurable, never compiled in.
type Thresholds struct {
	Biweekly   float64
	Monthly    float64
	PaidInFull float64
}

// DefaultThresholds mirrors the operational defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Biweekly: 24.98, Monthly: 49.0, PaidInFull: 688.0}
}

// ThresholdsFromEnv reads threshold overrides from the environment, keeping
// the defaults for anything unset or unparseable.
func ThresholdsFromEnv() Thresholds {
	t := DefaultThresholds()
	if v, ok := parseEnvFloat("ABC_BIWEEKLY_UPGRADE_THRESHOLD"); ok {
		t.Biweekly = v
	}
	if v, ok := parseEnvFloat("ABC_MONTHLY_UPGRADE_THRESHOLD"); ok {
		t.Monthly = v
	}
	if v, ok := parseEnvFloat("ABC_PIF_UPGRADE_THRESHOLD"); ok {
		t.PaidInFull = v
	}
	return t
}

func parseEnvFloat(key string) (float64, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// EligibleForContract is the pure eligibility rule. The three branches are
// OR'd; first match wins:
//   - bi-weekly agreements paying above the bi-weekly threshold
//   - monthly agreements paying above the monthly threshold
//   - paid-in-full memberships with a down payment above the PIF threshold
func EligibleForContract(ag *Agreement, t Thresholds) bool {
	freq := strings.ToLower(strings.TrimSpace(ag.PaymentFrequency))
	nextDue := parseAmount(ag.NextDueAmount)

	if freq == "bi-weekly" && nextDue > t.Biweekly {
		return true
	}
	if freq == "monthly" && nextDue > t.Monthly {
		return true
	}
	if paidInFull(ag) && parseAmount(ag.DownPayment) > t.PaidInFull {
		return true
	}
	return false
}

// paidInFull matches PIF-flavored membership types or an explicit
// "paid in full" payment plan, case-insensitively.
func paidInFull(ag *Agreement) bool {
	if strings.Contains(strings.ToLower(ag.MembershipType), "pif") {
		return true
	}
	if strings.Contains(strings.ToLower(ag.MembershipTypeAbcCode), "pif") {
		return true
	}
	return strings.Contains(strings.ToLower(ag.PaymentPlan), "paid in full")
}

// parseAmount tolerates ABC's string-typed decimals; anything unparseable
// reads as 0 rather than failing the flow.
func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
