// Package metrics derives the capacity and risk figures for a run:
// utilization percentage, a bounded risk score, a runout forecast, and the
// alert records handed to the report renderers.
package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/ALastoff/LicenseView/internal/models"
)

// Thresholds are the utilization alert thresholds expressed as fractions of
// capacity (e.g. 0.80 for 80%).
type Thresholds struct {
	Warn float64
	Crit float64
}

// Risk score components. Utilization contributes up to half the score; the
// remainder is a step function of license expiry proximity.
const (
	utilizationWeight = 50

	expiryComponentCritical = 50 // expires within 30 days
	expiryComponentWarning  = 30 // expires within 90 days
	expiryComponentInfo     = 15 // expires within a year
	expiryComponentLow      = 5  // beyond a year, or perpetual
)

// minimalGrowthRate is the daily growth, in protected units per day, below
// which an increasing trend is still reported as minimal growth rather than
// projected to a runout date.
const minimalGrowthRate = 0.1

// forecastMinSamples is the minimum number of 7-day samples required before
// any trend is computed.
const forecastMinSamples = 3

// UtilizationPct returns the capacity utilization as a percentage. A zero or
// negative entitlement yields 0; there is never a division by zero.
func UtilizationPct(protectedUnits, maxUnits int) float64 {
	if maxUnits <= 0 {
		return 0
	}
	return float64(protectedUnits) / float64(maxUnits) * 100
}

// expiryComponent maps days-to-expiry onto the risk step function. Perpetual
// licenses (hasExpiry false) use the lowest bucket.
func expiryComponent(daysToExpiry int, hasExpiry bool) int {
	switch {
	case !hasExpiry:
		return expiryComponentLow
	case daysToExpiry <= 30:
		return expiryComponentCritical
	case daysToExpiry <= 90:
		return expiryComponentWarning
	case daysToExpiry <= 365:
		return expiryComponentInfo
	default:
		return expiryComponentLow
	}
}

// RiskScore combines the utilization and expiry components into a score
// clamped to [0, 100].
func RiskScore(utilizationPct float64, daysToExpiry int, hasExpiry bool) int {
	utilization := math.Min(utilizationPct/100, 1.0) * utilizationWeight
	score := int(utilization) + expiryComponent(daysToExpiry, hasExpiry)

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// Forecast projects when consumption will reach entitlement capacity, from
// the 7-day trend series. Fewer than three samples yields NotAvailable. The
// projection solves for the days of remaining headroom at the observed daily
// growth rate rather than using a fixed horizon.
func Forecast(
	series []models.TrendPoint,
	maxUnits int,
	protectedUnits int,
	now time.Time,
) models.Forecast {
	if len(series) < forecastMinSamples {
		return models.Forecast{Kind: models.ForecastNotAvailable}
	}

	trend := series[len(series)-1].Value - series[0].Value
	switch {
	case trend == 0:
		return models.Forecast{Kind: models.ForecastStable}
	case trend < 0:
		return models.Forecast{Kind: models.ForecastStableDecreasing}
	}

	dailyGrowthRate := float64(trend) / float64(len(series))
	if dailyGrowthRate < minimalGrowthRate {
		return models.Forecast{Kind: models.ForecastStableMinimalGrowth}
	}

	headroom := maxUnits - protectedUnits
	if headroom < 0 {
		headroom = 0
	}
	daysToRunout := int(math.Ceil(float64(headroom) / dailyGrowthRate))

	date := now.UTC().AddDate(0, 0, daysToRunout)
	return models.Forecast{Kind: models.ForecastProjectedDate, Date: &date}
}

// Alerts evaluates utilization against the configured thresholds and expiry
// proximity against fixed 30/90-day ladders. Perpetual licenses never
// generate expiry alerts.
func Alerts(
	utilizationPct float64,
	daysToExpiry int,
	hasExpiry bool,
	thresholds Thresholds,
) []models.Alert {
	var alerts []models.Alert

	switch {
	case utilizationPct >= thresholds.Crit*100:
		alerts = append(alerts, models.Alert{
			Severity:       models.SeverityCritical,
			Message:        fmt.Sprintf("Utilization critical (%.1f%%)", utilizationPct),
			Recommendation: "Immediate action required: review licensing tier and add capacity",
		})
	case utilizationPct >= thresholds.Warn*100:
		alerts = append(alerts, models.Alert{
			Severity:       models.SeverityWarning,
			Message:        fmt.Sprintf("Utilization high (%.1f%%)", utilizationPct),
			Recommendation: "Audit and right-size your protected infrastructure",
		})
	}

	if hasExpiry {
		switch {
		case daysToExpiry <= 30:
			alerts = append(alerts, models.Alert{
				Severity:       models.SeverityWarning,
				Message:        fmt.Sprintf("License expiring soon (%d days)", daysToExpiry),
				Recommendation: "License renewal action required",
			})
		case daysToExpiry <= 90:
			alerts = append(alerts, models.Alert{
				Severity:       models.SeverityInfo,
				Message:        fmt.Sprintf("License expiration reminder (%d days)", daysToExpiry),
				Recommendation: "Plan license renewal",
			})
		}
	}

	return alerts
}

// Derive combines entitlement, consumption, and the windowed history into the
// full metrics record for one run.
func Derive(
	entitlement models.Entitlement,
	consumption models.ConsumptionSnapshot,
	windows map[int]models.TrendWindow,
	thresholds Thresholds,
	now time.Time,
) models.Metrics {
	utilization := UtilizationPct(consumption.ProtectedUnits, entitlement.MaxUnits)
	daysToExpiry, hasExpiry := entitlement.DaysToExpiry(now)

	var sevenDay []models.TrendPoint
	if window, ok := windows[7]; ok {
		sevenDay = window.Series
	}

	result := models.Metrics{
		Timestamp:      now.UTC(),
		UtilizationPct: utilization,
		RiskScore:      RiskScore(utilization, daysToExpiry, hasExpiry),
		Forecast:       Forecast(sevenDay, entitlement.MaxUnits, consumption.ProtectedUnits, now),
		Alerts:         Alerts(utilization, daysToExpiry, hasExpiry, thresholds),
	}
	if hasExpiry {
		result.DaysToExpiry = &daysToExpiry
	}
	return result
}
