package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ALastoff/LicenseView/internal/models"
)

// Rendered file names inside the output directory.
const (
	HTMLFileName = "report.html"
	CSVFileName  = "licensing_utilization.csv"
	JSONFileName = "licensing_utilization.json"
)

// Generator writes reports into a single output directory.
type Generator struct {
	dir    string
	logger *logrus.Logger
}

// NewGenerator creates the output directory if needed and returns a Generator
// writing into it.
func NewGenerator(dir string, logger *logrus.Logger) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Generator{dir: dir, logger: logger}, nil
}

// Render writes the payload in each requested format and returns the paths of
// the files produced. Formats are rendered independently; the first failure
// aborts the run.
func (g *Generator) Render(payload *Payload, formats []string) ([]string, error) {
	var paths []string
	for _, format := range formats {
		var (
			path string
			err  error
		)
		switch strings.ToLower(format) {
		case "html":
			path, err = g.HTML(payload)
		case "csv":
			path, err = g.CSV(payload)
		case "json":
			path, err = g.JSON(payload)
		default:
			return nil, fmt.Errorf("unsupported report format: %s", format)
		}
		if err != nil {
			return nil, err
		}

		g.logger.WithFields(logrus.Fields{
			"format": strings.ToLower(format),
			"path":   path,
		}).Info("Report written")
		paths = append(paths, path)
	}
	return paths, nil
}

// JSON writes the machine-readable report. The license key is masked before
// serialization.
func (g *Generator) JSON(payload *Payload) (string, error) {
	masked := *payload
	masked.Entitlement.Key = models.MaskKey(payload.Entitlement.Key)

	data, err := json.MarshalIndent(&masked, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON report: %w", err)
	}

	path := filepath.Join(g.dir, JSONFileName)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write JSON report: %w", err)
	}
	return path, nil
}

// CSV writes the spreadsheet summary: one SUMMARY row followed by one row per
// peer site.
func (g *Generator) CSV(payload *Payload) (string, error) {
	path := filepath.Join(g.dir, CSVFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV report: %w", err)
	}
	defer file.Close()

	timestamp := payload.Meta.GeneratedAt.Format("2006-01-02 15:04:05")
	writer := csv.NewWriter(file)

	rows := [][]string{
		{"Site", "Protected VMs", "Entitled VMs", "Utilization %", "Risk Score", "Timestamp"},
		{
			"SUMMARY",
			strconv.Itoa(payload.Consumption.ProtectedUnits),
			strconv.Itoa(payload.Entitlement.MaxUnits),
			fmt.Sprintf("%.1f", payload.Metrics.UtilizationPct),
			strconv.Itoa(payload.Metrics.RiskScore),
			timestamp,
		},
	}
	for _, site := range payload.Consumption.PerSite {
		rows = append(rows, []string{
			site.Name,
			strconv.Itoa(site.ProtectedUnits),
			strconv.Itoa(payload.Entitlement.MaxUnits),
			fmt.Sprintf("%.1f", siteUtilization(site, payload.Entitlement.MaxUnits)),
			"",
			timestamp,
		})
	}

	if err := writer.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write CSV report: %w", err)
	}
	return path, nil
}

// siteUtilization is the site's share of the whole entitlement. Risk is not
// scored per site, so the CSV risk column stays empty for site rows.
func siteUtilization(site models.SiteUsage, maxUnits int) float64 {
	if maxUnits <= 0 {
		return 0
	}
	return float64(site.ProtectedUnits) / float64(maxUnits) * 100
}

// HTML writes the dashboard report.
func (g *Generator) HTML(payload *Payload) (string, error) {
	path := filepath.Join(g.dir, HTMLFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create HTML report: %w", err)
	}
	defer file.Close()

	expiryDate, expiryDays := expiryDisplay(payload.Entitlement, payload.Meta.GeneratedAt)
	view := htmlView{
		Payload:     payload,
		MaskedKey:   models.MaskKey(payload.Entitlement.Key),
		Generated:   payload.Meta.GeneratedAt.Format("2006-01-02 15:04:05"),
		ExpiryDate:  expiryDate,
		ExpiryDays:  expiryDays,
		Utilization: fmt.Sprintf("%.1f%%", payload.Metrics.UtilizationPct),
		Forecast:    payload.Metrics.Forecast.String(),
	}

	if err := dashboardTemplate.Execute(file, view); err != nil {
		return "", fmt.Errorf("failed to render HTML report: %w", err)
	}
	return path, nil
}

// htmlView augments the payload with the preformatted strings the dashboard
// template needs.
type htmlView struct {
	*Payload
	MaskedKey   string
	Generated   string
	ExpiryDate  string
	ExpiryDays  string
	Utilization string
	Forecast    string
}

// badgeClass maps an alert severity onto the dashboard's styling classes.
func badgeClass(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "danger"
	case models.SeverityWarning:
		return "warning"
	case models.SeverityInfo:
		return "info"
	default:
		return "secondary"
	}
}

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"badgeClass": badgeClass,
	"title":      strings.Title, //nolint:staticcheck // severity labels are ASCII
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Zerto Licensing Utilization Report</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.1.3/dist/css/bootstrap.min.css" rel="stylesheet">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; }
        .card-title { color: #666; font-size: 0.9rem; font-weight: 600; }
        .card h2 { color: #2c3e50; margin: 0; }
        @media print {
            .no-print { display: none; }
            body { font-size: 12pt; }
        }
    </style>
</head>
<body>
    <div class="container-fluid p-4">
        <div class="row mb-4">
            <div class="col">
                <h1 class="mb-2">Zerto Licensing Utilization Report</h1>
                <p class="text-muted mb-1">Generated: {{.Generated}}</p>
                <p class="text-muted mb-0">
                    Zerto v{{.Meta.ZvmVersion}} | Tool v{{.Meta.ToolVersion}} |
                    TLS: {{if .Meta.TLSVerified}}&#x2713; Verified{{else}}&#x26A0; Disabled{{end}}
                </p>
            </div>
        </div>

        <div class="row mb-4">
            <div class="col-md-3">
                <div class="card">
                    <div class="card-body text-center">
                        <div class="card-title">Entitled Protected VMs</div>
                        <h2>{{.Entitlement.MaxUnits}}</h2>
                    </div>
                </div>
            </div>
            <div class="col-md-3">
                <div class="card">
                    <div class="card-body text-center">
                        <div class="card-title">Current Protected VMs</div>
                        <h2>{{.Consumption.ProtectedUnits}}</h2>
                    </div>
                </div>
            </div>
            <div class="col-md-3">
                <div class="card">
                    <div class="card-body text-center">
                        <div class="card-title">Utilization</div>
                        <h2>{{.Utilization}}</h2>
                    </div>
                </div>
            </div>
            <div class="col-md-3">
                <div class="card">
                    <div class="card-body text-center">
                        <div class="card-title">Risk Score</div>
                        <h2>{{.Metrics.RiskScore}}</h2>
                    </div>
                </div>
            </div>
        </div>

        <div class="row mb-4">
            <div class="col-md-6">
                <div class="card">
                    <div class="card-header">
                        <h5 class="mb-0">Alerts &amp; Recommendations</h5>
                    </div>
                    <div class="card-body">
                        {{if not .Metrics.Alerts}}<p class="text-success">No alerts</p>{{end}}
                        {{range .Metrics.Alerts}}
                        <div class="alert alert-{{badgeClass .Severity}}" role="alert">
                            <strong>{{title (printf "%s" .Severity)}}:</strong> {{.Message}}<br>
                            <small>{{.Recommendation}}</small>
                        </div>
                        {{end}}
                    </div>
                </div>
            </div>
            <div class="col-md-6">
                <div class="card">
                    <div class="card-header">
                        <h5 class="mb-0">License Information</h5>
                    </div>
                    <div class="card-body">
                        <p><strong>License Key:</strong> {{.MaskedKey}}</p>
                        <p><strong>Plan:</strong> {{.Entitlement.PlanKind}}</p>
                        <p><strong>Expiration Date:</strong> {{.ExpiryDate}}</p>
                        <p><strong>Days to Expiry:</strong> {{.ExpiryDays}}</p>
                        <p><strong>Runout Forecast:</strong> {{.Forecast}}</p>
                    </div>
                </div>
            </div>
        </div>

        <div class="row mb-4">
            <div class="col-md-6">
                <div class="card">
                    <div class="card-header">
                        <h5 class="mb-0">Protection Trend</h5>
                    </div>
                    <div class="card-body">
                        {{range $period, $window := .Windows}}
                        <h6>Last {{$period}} days</h6>
                        <table class="table table-sm">
                            <thead><tr><th>Date</th><th>Protected VMs</th></tr></thead>
                            <tbody>
                            {{range $window.Series}}<tr><td>{{.Label}}</td><td>{{.Value}}</td></tr>
                            {{end}}
                            </tbody>
                        </table>
                        {{end}}
                    </div>
                </div>
            </div>
            <div class="col-md-6">
                <div class="card">
                    <div class="card-header">
                        <h5 class="mb-0">API Health</h5>
                    </div>
                    <div class="card-body">
                        <table class="table table-sm">
                            <tbody>
                            {{range $endpoint, $status := .APIHealth}}
                            <tr><td>{{$endpoint}}</td><td>{{$status}}</td></tr>
                            {{end}}
                            </tbody>
                        </table>
                    </div>
                </div>
            </div>
        </div>

        <hr>
        <footer class="text-muted mt-4">
            <small>Report {{.Meta.ReportID}} generated on {{.Generated}}</small>
        </footer>
    </div>
</body>
</html>
`))
