package config

import (
	"os"
	"strconv"
)

// ApplyEnv overlays environment variables onto the profile. Unset or
// unparseable variables leave the profile untouched.
//
//	CROSSFORM_RATE_ENABLED        "true"/"false"
//	CROSSFORM_RATE_RPS            float
//	CROSSFORM_RATE_BURST          int
//	CROSSFORM_ESCALATION_TIMEOUT_MS  int
//	CROSSFORM_AUDIT               "true"/"false"
func (p *Profile) ApplyEnv() {
	if v, ok := lookupBool("CROSSFORM_RATE_ENABLED"); ok {
		p.RateLimit.Enabled = v
	}
	if v := os.Getenv("CROSSFORM_RATE_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			p.RateLimit.RPS = rps
		}
	}
	if v := os.Getenv("CROSSFORM_RATE_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			p.RateLimit.Burst = burst
		}
	}
	if v := os.Getenv("CROSSFORM_ESCALATION_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			p.Escalation.TimeoutMs = ms
		}
	}
	if v, ok := lookupBool("CROSSFORM_AUDIT"); ok {
		p.Audit = v
	}
}

func lookupBool(key string) (value, ok bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
