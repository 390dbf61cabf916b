// Package run drives one end-to-end reporting cycle: authenticate, fetch
// entitlement and consumption, persist the usage snapshot, derive metrics,
// and render the reports.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ALastoff/LicenseView/internal/auth"
	"github.com/ALastoff/LicenseView/internal/config"
	"github.com/ALastoff/LicenseView/internal/history"
	"github.com/ALastoff/LicenseView/internal/metrics"
	"github.com/ALastoff/LicenseView/internal/models"
	"github.com/ALastoff/LicenseView/internal/report"
	"github.com/ALastoff/LicenseView/internal/zvm"
)

// Options configures one reporting run.
type Options struct {
	// Config is the validated run configuration.
	Config *config.Config
	// ToolVersion is stamped into the report metadata.
	ToolVersion string
	// Logger receives run progress and warnings.
	Logger *logrus.Logger
	// Now supplies the run clock; nil means time.Now.
	Now func() time.Time
}

// Result carries the outcome of a successful run.
type Result struct {
	// Payload is the assembled report input.
	Payload *report.Payload
	// ReportPaths are the files written, in render order.
	ReportPaths []string
	// Protocol is the authentication protocol that won negotiation.
	Protocol auth.Protocol
}

// Execute performs one reporting cycle. API endpoints that are absent on
// older ZVM versions degrade into the report's API health section; only
// authentication and the license endpoint are fatal.
func Execute(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	logger := opts.Logger
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	policy := cfg.TLSPolicy()
	// Security posture is announced before the first network call.
	for _, warning := range policy.Warnings() {
		logger.Warn(warning)
	}

	transport, err := policy.Transport()
	if err != nil {
		return nil, fmt.Errorf("building transport: %w", err)
	}

	negotiator := auth.NewNegotiator(
		cfg.ZvmURL,
		cfg.Realm,
		cfg.AuthMode(),
		cfg.Credentials(),
		transport,
		cfg.Timeout(),
		logger,
	)

	token, err := negotiator.Negotiate(ctx)
	if err != nil {
		return nil, err
	}

	renew := func(ctx context.Context, token *auth.TokenContext) error {
		if token.Protocol == auth.ProtocolModern && token.RefreshToken != "" {
			if refreshErr := negotiator.Refresh(ctx, token); refreshErr == nil {
				return nil
			}
			logger.Warn("Token refresh failed, re-negotiating from scratch")
		}
		fresh, negotiateErr := negotiator.Negotiate(ctx)
		if negotiateErr != nil {
			return negotiateErr
		}
		*token = *fresh
		return nil
	}

	client := zvm.NewClient(cfg.ZvmURL, token, transport, cfg.Timeout(), renew, logger)

	apiHealth := map[string]string{}

	if client.Reachable(ctx) {
		apiHealth["serverInfo"] = "ok"
	} else {
		apiHealth["serverInfo"] = "degraded: connectivity probe failed"
		logger.Warn("Connectivity probe failed, continuing with data collection")
	}

	zvmVersion := ""
	if local, localErr := client.Local(ctx); localErr == nil {
		zvmVersion = local.Version
		apiHealth["localsite"] = "ok"
	} else {
		apiHealth["localsite"] = degradation(localErr)
		logger.WithError(localErr).Warn("Local site endpoint unavailable, version unknown")
	}

	entitlement, licensedUnits, err := client.License(ctx)
	if err != nil {
		return nil, err
	}
	apiHealth["license"] = "ok"

	consumption, vpgErr := client.VPGs(ctx)
	if vpgErr == nil {
		apiHealth["vpgs"] = "ok"
	} else {
		if !models.IsEndpointUnavailable(vpgErr) {
			return nil, vpgErr
		}
		// Older endpoints still report the total in the license usage
		// section; group-level detail is lost.
		consumption = &models.ConsumptionSnapshot{ProtectedUnits: licensedUnits}
		apiHealth["vpgs"] = degradation(vpgErr)
		logger.WithError(vpgErr).Warn("VPG endpoint unavailable, using license usage totals")
	}

	if sites, sitesErr := client.PeerSites(ctx); sitesErr == nil {
		consumption.PerSite = sites
		apiHealth["peersites"] = "ok"
	} else {
		apiHealth["peersites"] = degradation(sitesErr)
		logger.WithError(sitesErr).Warn("Peer sites endpoint unavailable, per-site breakdown omitted")
	}

	runAt := now().UTC()

	store := history.NewStore(cfg.HistoryPath, logger)
	snapshot := models.Snapshot{
		Timestamp:      runAt,
		ProtectedUnits: consumption.ProtectedUnits,
		GroupCount:     consumption.GroupCount,
		StorageUsedGb:  consumption.StorageUsedGb,
	}
	snapshots, appendErr := store.Append(snapshot, runAt)
	if appendErr != nil {
		logger.WithError(appendErr).Warn("Failed to persist usage history, trends limited to this run")
		snapshots = []models.Snapshot{snapshot}
	}
	windows := history.Windows(snapshots, runAt)

	derived := metrics.Derive(
		*entitlement,
		*consumption,
		windows,
		metrics.Thresholds{Warn: cfg.Alerts.Warn, Crit: cfg.Alerts.Crit},
		runAt,
	)

	payload := &report.Payload{
		Meta:        report.NewMeta(opts.ToolVersion, zvmVersion, policy.Verify, runAt),
		Entitlement: *entitlement,
		Consumption: *consumption,
		Metrics:     derived,
		Windows:     windows,
		APIHealth:   apiHealth,
	}

	generator, err := report.NewGenerator(cfg.Output.Dir, logger)
	if err != nil {
		return nil, err
	}
	paths, err := generator.Render(payload, cfg.Output.Formats)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"utilization_pct": derived.UtilizationPct,
		"risk_score":      derived.RiskScore,
		"alerts":          len(derived.Alerts),
		"reports":         len(paths),
	}).Info("Run complete")

	return &Result{
		Payload:     payload,
		ReportPaths: paths,
		Protocol:    token.Protocol,
	}, nil
}

// degradation renders an endpoint failure for the API health section.
func degradation(err error) string {
	if models.IsEndpointUnavailable(err) {
		return "degraded: endpoint not available"
	}
	return fmt.Sprintf("degraded: %v", err)
}
