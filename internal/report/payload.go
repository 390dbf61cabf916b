// Package report renders the assembled run results into the operator-facing
// output formats: an HTML dashboard, a CSV summary, and a JSON document.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ALastoff/LicenseView/internal/models"
)

// Meta carries run-level metadata included in every rendered report.
type Meta struct {
	// ReportID uniquely identifies this run's reports.
	ReportID string `json:"report_id"`
	// GeneratedAt is the report creation instant in UTC.
	GeneratedAt time.Time `json:"generated_at"`
	// ToolVersion is the reporting tool's version string.
	ToolVersion string `json:"tool_version"`
	// ZvmVersion is the version reported by the management endpoint, or
	// "Unknown" when the version endpoint was unavailable.
	ZvmVersion string `json:"zvm_version"`
	// TLSVerified records whether certificate chain validation was enabled.
	TLSVerified bool `json:"tls_verified"`
}

// Payload is the complete input to the report renderers. License keys are
// masked by the renderers, never by the payload itself.
type Payload struct {
	Meta        Meta                       `json:"meta"`
	Entitlement models.Entitlement         `json:"license"`
	Consumption models.ConsumptionSnapshot `json:"consumption"`
	Metrics     models.Metrics             `json:"metrics"`
	Windows     map[int]models.TrendWindow `json:"history"`
	// APIHealth maps endpoint names to their per-run status ("ok" or a
	// degradation description).
	APIHealth map[string]string `json:"api_health"`
}

// NewMeta assembles run metadata with a fresh report identifier.
func NewMeta(toolVersion, zvmVersion string, tlsVerified bool, now time.Time) Meta {
	if zvmVersion == "" {
		zvmVersion = "Unknown"
	}
	return Meta{
		ReportID:    uuid.NewString(),
		GeneratedAt: now.UTC(),
		ToolVersion: toolVersion,
		ZvmVersion:  zvmVersion,
		TLSVerified: tlsVerified,
	}
}

// expiryDisplay renders the license expiration for report output.
func expiryDisplay(e models.Entitlement, now time.Time) (date string, days string) {
	if e.ExpiresAt == nil {
		return "N/A", "N/A (perpetual)"
	}
	remaining, _ := e.DaysToExpiry(now)
	return e.ExpiresAt.UTC().Format("2006-01-02"), formatDays(remaining)
}

func formatDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
