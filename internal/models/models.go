// Package models defines the data structures exchanged between the ZVM API
// client, the history store, the metrics engine, and the report renderers,
// along with the error taxonomy shared across the tool.
package models

import (
	"fmt"
	"time"
)

// Entitlement describes the contractual capacity limit granted by a license.
type Entitlement struct {
	// Key is the license key, masked before rendering.
	Key string `json:"key"`
	// MaxUnits is the maximum number of protected VMs the license allows.
	MaxUnits int `json:"max_units"`
	// ExpiresAt is the license expiration instant. A nil value denotes a
	// perpetual license and is treated as "never expires" in all comparisons.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// PlanKind is the license tier (e.g. "Enterprise").
	PlanKind string `json:"plan_kind"`
}

// DaysToExpiry returns the whole days remaining until the license expires.
// The second return value is false for perpetual licenses.
func (e Entitlement) DaysToExpiry(now time.Time) (int, bool) {
	if e.ExpiresAt == nil {
		return 0, false
	}
	days := int(e.ExpiresAt.Sub(now).Hours() / 24)
	return days, true
}

// GroupStatusCounts is the health distribution of protection groups.
type GroupStatusCounts struct {
	Healthy  int `json:"healthy"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// SiteUsage holds per-site consumption figures.
type SiteUsage struct {
	Name           string `json:"name"`
	ProtectedUnits int    `json:"protected_units"`
	GroupCount     int    `json:"group_count"`
}

// ConsumptionSnapshot is the currently measured usage against the entitlement.
type ConsumptionSnapshot struct {
	ProtectedUnits int               `json:"protected_units"`
	GroupCount     int               `json:"group_count"`
	GroupStatus    GroupStatusCounts `json:"group_status"`
	StorageUsedGb  float64           `json:"storage_used_gb"`
	PerSite        []SiteUsage       `json:"per_site,omitempty"`
}

// Snapshot is one timestamped measurement of consumption, persisted by the
// history store for trend analysis. Snapshots are immutable once created.
type Snapshot struct {
	// Timestamp is the measurement instant in UTC.
	Timestamp time.Time `json:"timestamp"`
	// ProtectedUnits is the number of protected VMs at measurement time.
	ProtectedUnits int `json:"protected_units"`
	// GroupCount is the number of protection groups at measurement time.
	GroupCount int `json:"group_count"`
	// StorageUsedGb is the journal storage consumed, in GB.
	StorageUsedGb float64 `json:"storage_used_gb"`
}

// TrendPoint is one labeled sample inside a trend window.
type TrendPoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// TrendWindow is a derived, per-period series of daily samples. It is
// recomputed on every query and never persisted.
type TrendWindow struct {
	PeriodDays int          `json:"period_days"`
	Series     []TrendPoint `json:"series"`
}

// Severity classifies an alert.
type Severity string

// Alert severities, ordered from least to most urgent.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one actionable finding produced by the metrics engine.
type Alert struct {
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// ForecastKind tags the runout forecast variant.
type ForecastKind string

// Forecast variants. ForecastProjectedDate is the only variant carrying a date.
const (
	ForecastNotAvailable        ForecastKind = "not_available"
	ForecastStable              ForecastKind = "stable"
	ForecastStableDecreasing    ForecastKind = "stable_decreasing"
	ForecastStableMinimalGrowth ForecastKind = "stable_minimal_growth"
	ForecastProjectedDate       ForecastKind = "projected_date"
)

// Forecast is the projected future point at which consumption is expected to
// reach entitlement capacity.
type Forecast struct {
	Kind ForecastKind `json:"kind"`
	// Date is set only when Kind is ForecastProjectedDate.
	Date *time.Time `json:"date,omitempty"`
}

// String renders the forecast for operator-facing output.
func (f Forecast) String() string {
	switch f.Kind {
	case ForecastStable:
		return "Stable"
	case ForecastStableDecreasing:
		return "Stable (decreasing)"
	case ForecastStableMinimalGrowth:
		return "Stable (minimal growth)"
	case ForecastProjectedDate:
		if f.Date != nil {
			return f.Date.UTC().Format("2006-01-02")
		}
		return "N/A"
	default:
		return "N/A"
	}
}

// Metrics is the derived capacity/risk result for one run.
type Metrics struct {
	Timestamp      time.Time `json:"timestamp"`
	UtilizationPct float64   `json:"utilization_pct"`
	RiskScore      int       `json:"risk_score"`
	Forecast       Forecast  `json:"forecast_runout"`
	// DaysToExpiry is nil for perpetual licenses.
	DaysToExpiry *int    `json:"days_to_expiry,omitempty"`
	Alerts       []Alert `json:"alerts"`
}

// MaskKey redacts the middle segments of a license key for display,
// keeping only the trailing segment.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return fmt.Sprintf("****-%s", key[len(key)-4:])
}
