package zvm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALastoff/LicenseView/internal/models"
)

func jsonHandler(t *testing.T, path, body string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, path, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestLicenseParsesEntitlement(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/v1/license", `{
		"Details": {
			"LicenseKey": "ZRT1-884A-PLQ2-M4CH",
			"LicenseType": "Enterprise",
			"ExpiryTime": "2027-06-30T00:00:00Z",
			"MaxVms": 500
		},
		"Usage": {"TotalVmsCount": 412}
	}`))
	defer server.Close()

	c := newTestClient(server.URL, bearerToken("t"), nil)

	ent, totalVms, err := c.License(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ZRT1-884A-PLQ2-M4CH", ent.Key)
	assert.Equal(t, 500, ent.MaxUnits)
	assert.Equal(t, "Enterprise", ent.PlanKind)
	require.NotNil(t, ent.ExpiresAt)
	assert.Equal(t, time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC), *ent.ExpiresAt)
	assert.Equal(t, 412, totalVms)
}

func TestLicenseEmptyExpiryMeansPerpetual(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/v1/license", `{
		"Details": {"LicenseKey": "K", "LicenseType": "Perpetual", "MaxVms": 100},
		"Usage": {"TotalVmsCount": 10}
	}`))
	defer server.Close()

	c := newTestClient(server.URL, bearerToken("t"), nil)

	ent, _, err := c.License(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ent.ExpiresAt)
}

func TestVPGsAggregateConsumption(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/v1/vpgs", `[
		{"VpgName": "a", "VmsCount": 10, "Status": 1, "UsedStorageInMB": 2048},
		{"VpgName": "b", "VmsCount": 20, "Status": 2, "UsedStorageInMB": 1024},
		{"VpgName": "c", "VmsCount": 5,  "Status": 3, "UsedStorageInMB": 512},
		{"VpgName": "d", "VmsCount": 1,  "Status": 7, "UsedStorageInMB": 512}
	]`))
	defer server.Close()

	c := newTestClient(server.URL, bearerToken("t"), nil)

	cons, err := c.VPGs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 36, cons.ProtectedUnits)
	assert.Equal(t, 4, cons.GroupCount)
	assert.Equal(t, models.GroupStatusCounts{Healthy: 1, Warning: 2, Critical: 1}, cons.GroupStatus)
	assert.InDelta(t, 4.0, cons.StorageUsedGb, 0.001)
}

func TestPeerSitesMapToSiteUsage(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/v1/peersites", `[
		{"PeerSiteName": "Primary-DC", "ProtectedVms": 210, "ProtectedVpgs": 48},
		{"PeerSiteName": "Secondary-DC", "ProtectedVms": 202, "ProtectedVpgs": 49}
	]`))
	defer server.Close()

	c := newTestClient(server.URL, bearerToken("t"), nil)

	sites, err := c.PeerSites(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, models.SiteUsage{Name: "Primary-DC", ProtectedUnits: 210, GroupCount: 48}, sites[0])
}

func TestLocalSiteCarriesVersion(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/v1/localsite", `{"SiteName": "Primary-DC", "Version": "9.7"}`))
	defer server.Close()

	c := newTestClient(server.URL, bearerToken("t"), nil)

	site, err := c.Local(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9.7", site.Version)
	assert.Equal(t, "Primary-DC", site.SiteName)
}

func TestReachableProbesServerInfo(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/v1/serverInfo", `{"Version": "9.7"}`))
	defer server.Close()

	c := newTestClient(server.URL, bearerToken("t"), nil)
	assert.True(t, c.Reachable(context.Background()))

	server.Close()
	assert.False(t, c.Reachable(context.Background()))
}
