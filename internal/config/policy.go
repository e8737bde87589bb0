package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// RefundTier grants RefundPercent of the fare when a booking is cancelled at
// least HoursBeforeDeparture hours ahead of departure
type RefundTier struct {
	HoursBeforeDeparture int     `yaml:"hours_before_departure"`
	RefundPercent        float64 `yaml:"refund_percent"`
}

// CancellationPolicy is the cutoff and refund schedule for cancellations
type CancellationPolicy struct {
	CutoffHours int          `yaml:"cutoff_hours"`
	Tiers       []RefundTier `yaml:"refund_tiers"`
}

// DefaultCancellationPolicy is used when no policy file is configured
func DefaultCancellationPolicy(cutoff time.Duration) *CancellationPolicy {
	return &CancellationPolicy{
		CutoffHours: int(cutoff.Hours()),
		Tiers: []RefundTier{
			{HoursBeforeDeparture: 24, RefundPercent: 100},
			{HoursBeforeDeparture: 6, RefundPercent: 75},
			{HoursBeforeDeparture: 0, RefundPercent: 50},
		},
	}
}

// LoadCancellationPolicy reads a YAML policy file. An empty path yields the default.
//
//	cutoff_hours: 2
//	refund_tiers:
//	  - hours_before_departure: 24
//	    refund_percent: 100
func LoadCancellationPolicy(path string, fallbackCutoff time.Duration) (*CancellationPolicy, error) {
	if path == "" {
		return DefaultCancellationPolicy(fallbackCutoff), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cancellation policy: %w", err)
	}
	return ParseCancellationPolicy(data)
}

// ParseCancellationPolicy decodes and validates a YAML policy document
func ParseCancellationPolicy(data []byte) (*CancellationPolicy, error) {
	var policy CancellationPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse cancellation policy: %w", err)
	}

	if policy.CutoffHours < 0 {
		return nil, fmt.Errorf("cutoff_hours must not be negative")
	}
	for _, tier := range policy.Tiers {
		if tier.RefundPercent < 0 || tier.RefundPercent > 100 {
			return nil, fmt.Errorf("refund_percent must be between 0 and 100, got %v", tier.RefundPercent)
		}
		if tier.HoursBeforeDeparture < 0 {
			return nil, fmt.Errorf("hours_before_departure must not be negative")
		}
	}

	// Highest threshold first so RefundPercent can stop at the first match
	sort.Slice(policy.Tiers, func(i, j int) bool {
		return policy.Tiers[i].HoursBeforeDeparture > policy.Tiers[j].HoursBeforeDeparture
	})

	return &policy, nil
}

// Cutoff returns the cutoff window as a duration
func (p *CancellationPolicy) Cutoff() time.Duration {
	return time.Duration(p.CutoffHours) * time.Hour
}

// RefundPercent returns the refundable share for a cancellation made
// timeLeft before departure
func (p *CancellationPolicy) RefundPercent(timeLeft time.Duration) float64 {
	for _, tier := range p.Tiers {
		if timeLeft >= time.Duration(tier.HoursBeforeDeparture)*time.Hour {
			return tier.RefundPercent
		}
	}
	return 0
}
