package zvm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ALastoff/LicenseView/internal/models"
)

// ZVM protection group status codes mapped into the health distribution.
// Codes follow the v1 API enumeration: 1 means the group is meeting its SLA,
// 2 and 3 are history/RPO degradations, anything above is a failure state.
const (
	vpgStatusMeetingSLA        = 1
	vpgStatusHistoryNotMeeting = 2
	vpgStatusRpoNotMeeting     = 3
)

// licenseResponse mirrors GET /v1/license.
type licenseResponse struct {
	Details struct {
		LicenseKey  string `json:"LicenseKey"`
		LicenseType string `json:"LicenseType"`
		ExpiryTime  string `json:"ExpiryTime"`
		MaxVms      int    `json:"MaxVms"`
	} `json:"Details"`
	Usage struct {
		TotalVmsCount int `json:"TotalVmsCount"`
	} `json:"Usage"`
}

// vpgResponse mirrors one element of GET /v1/vpgs.
type vpgResponse struct {
	VpgName         string  `json:"VpgName"`
	VmsCount        int     `json:"VmsCount"`
	Status          int     `json:"Status"`
	UsedStorageInMB float64 `json:"UsedStorageInMB"`
}

// peerSiteResponse mirrors one element of GET /v1/peersites.
type peerSiteResponse struct {
	PeerSiteName  string `json:"PeerSiteName"`
	ProtectedVms  int    `json:"ProtectedVms"`
	ProtectedVpgs int    `json:"ProtectedVpgs"`
}

// LocalSite describes the ZVM instance itself, from GET /v1/localsite.
type LocalSite struct {
	SiteName string `json:"SiteName"`
	Version  string `json:"Version"`
}

// License fetches entitlement information. An empty or absent expiry time in
// the response denotes a perpetual license.
func (c *Client) License(ctx context.Context) (*models.Entitlement, int, error) {
	raw, err := c.Call(ctx, http.MethodGet, "/v1/license", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching license: %w", err)
	}

	var resp licenseResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, 0, fmt.Errorf("decoding license response: %w", err)
	}

	ent := &models.Entitlement{
		Key:      resp.Details.LicenseKey,
		MaxUnits: resp.Details.MaxVms,
		PlanKind: resp.Details.LicenseType,
	}
	if resp.Details.ExpiryTime != "" {
		expiry, parseErr := time.Parse(time.RFC3339, resp.Details.ExpiryTime)
		if parseErr != nil {
			return nil, 0, fmt.Errorf("decoding license expiry %q: %w", resp.Details.ExpiryTime, parseErr)
		}
		utc := expiry.UTC()
		ent.ExpiresAt = &utc
	}

	return ent, resp.Usage.TotalVmsCount, nil
}

// VPGs fetches the protection groups and aggregates them into consumption
// totals: protected VM count, group count, health distribution, and journal
// storage in GB.
func (c *Client) VPGs(ctx context.Context) (*models.ConsumptionSnapshot, error) {
	raw, err := c.Call(ctx, http.MethodGet, "/v1/vpgs", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching vpgs: %w", err)
	}

	var vpgs []vpgResponse
	if err := json.Unmarshal(raw, &vpgs); err != nil {
		return nil, fmt.Errorf("decoding vpgs response: %w", err)
	}

	cons := &models.ConsumptionSnapshot{GroupCount: len(vpgs)}
	var storageMB float64
	for _, vpg := range vpgs {
		cons.ProtectedUnits += vpg.VmsCount
		storageMB += vpg.UsedStorageInMB

		switch vpg.Status {
		case vpgStatusMeetingSLA:
			cons.GroupStatus.Healthy++
		case vpgStatusHistoryNotMeeting, vpgStatusRpoNotMeeting:
			cons.GroupStatus.Warning++
		default:
			cons.GroupStatus.Critical++
		}
	}
	cons.StorageUsedGb = storageMB / 1024

	return cons, nil
}

// PeerSites fetches per-site usage figures.
func (c *Client) PeerSites(ctx context.Context) ([]models.SiteUsage, error) {
	raw, err := c.Call(ctx, http.MethodGet, "/v1/peersites", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching peer sites: %w", err)
	}

	var sites []peerSiteResponse
	if err := json.Unmarshal(raw, &sites); err != nil {
		return nil, fmt.Errorf("decoding peer sites response: %w", err)
	}

	usage := make([]models.SiteUsage, 0, len(sites))
	for _, site := range sites {
		usage = append(usage, models.SiteUsage{
			Name:           site.PeerSiteName,
			ProtectedUnits: site.ProtectedVms,
			GroupCount:     site.ProtectedVpgs,
		})
	}
	return usage, nil
}

// Local fetches the local site descriptor, which carries the ZVM version.
func (c *Client) Local(ctx context.Context) (*LocalSite, error) {
	raw, err := c.Call(ctx, http.MethodGet, "/v1/localsite", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching local site: %w", err)
	}

	var site LocalSite
	if err := json.Unmarshal(raw, &site); err != nil {
		return nil, fmt.Errorf("decoding local site response: %w", err)
	}
	return &site, nil
}

// Reachable probes basic API connectivity.
func (c *Client) Reachable(ctx context.Context) bool {
	_, err := c.Call(ctx, http.MethodGet, "/v1/serverInfo", nil)
	return err == nil
}
