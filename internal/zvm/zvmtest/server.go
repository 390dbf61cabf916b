// Package zvmtest provides an in-process fake of the ZVM API used by tests
// across the auth, gateway, and runner packages. Behavior is driven by
// mutable exported fields so individual tests can model version differences,
// missing endpoints, and expiring tokens.
package zvmtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
)

// Server is a configurable fake ZVM. Zero-value behavior: the modern grant
// accepts AcceptClientID, the legacy session endpoint issues SessionToken
// when set, and all data endpoints return the configured payloads.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// AcceptClientID is the only client identity the token endpoint accepts.
	// Empty rejects every modern attempt.
	AcceptClientID string
	// AccessToken and RefreshToken are handed out by the token endpoint.
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the advertised token lifetime in seconds.
	ExpiresIn int
	// SessionToken enables the legacy endpoint when non-empty.
	SessionToken string

	// License is returned by /v1/license; nil yields a 404.
	License map[string]interface{}
	// VPGs is returned by /v1/vpgs; nil yields a 404.
	VPGs []map[string]interface{}
	// PeerSites is returned by /v1/peersites; nil yields a 404.
	PeerSites []map[string]interface{}
	// LocalSite is returned by /v1/localsite; nil yields a 404.
	LocalSite map[string]interface{}

	// RejectBearer forces a 401 on data endpoints until a token renewal
	// produces RenewedToken.
	RejectBearer bool
	// RenewedToken is the access token accepted while RejectBearer is set.
	RenewedToken string

	// Recorded request state.
	TokenRequests   []string // client_id per token-endpoint call
	RefreshRequests int
	SessionRequests int
	DataRequests    []string // path per authenticated data call
}

// New starts a fake ZVM with a healthy default dataset.
func New() *Server {
	s := &Server{
		AcceptClientID: "zerto-client",
		AccessToken:    "test-access-token",
		RefreshToken:   "test-refresh-token",
		ExpiresIn:      3600,
		SessionToken:   "test-session-token",
		License: map[string]interface{}{
			"Details": map[string]interface{}{
				"LicenseKey":  "ZRT1-884A-PLQ2-M4CH",
				"LicenseType": "Enterprise",
				"ExpiryTime":  "2027-06-30T00:00:00Z",
				"MaxVms":      500,
			},
			"Usage": map[string]interface{}{"TotalVmsCount": 412},
		},
		VPGs: []map[string]interface{}{
			{"VpgName": "erp-cluster", "VmsCount": 210, "Status": 1, "UsedStorageInMB": 6291456},
			{"VpgName": "web-tier", "VmsCount": 198, "Status": 2, "UsedStorageInMB": 4194304},
			{"VpgName": "batch-jobs", "VmsCount": 4, "Status": 5, "UsedStorageInMB": 1048576},
		},
		PeerSites: []map[string]interface{}{
			{"PeerSiteName": "Primary-DC", "ProtectedVms": 210, "ProtectedVpgs": 48},
			{"PeerSiteName": "Secondary-DC", "ProtectedVms": 202, "ProtectedVpgs": 49},
		},
		LocalSite: map[string]interface{}{"SiteName": "Primary-DC", "Version": "9.7"},
	}

	router := mux.NewRouter()
	router.HandleFunc("/auth/realms/{realm}/protocol/openid-connect/token", s.handleToken).Methods(http.MethodPost)
	router.HandleFunc("/v1/session/add", s.handleSession).Methods(http.MethodPost)
	router.HandleFunc("/v1/license", s.dataHandler(func() interface{} {
		if s.License == nil {
			return nil
		}
		return s.License
	})).Methods(http.MethodGet)
	router.HandleFunc("/v1/vpgs", s.dataHandler(func() interface{} {
		if s.VPGs == nil {
			return nil
		}
		return s.VPGs
	})).Methods(http.MethodGet)
	router.HandleFunc("/v1/peersites", s.dataHandler(func() interface{} {
		if s.PeerSites == nil {
			return nil
		}
		return s.PeerSites
	})).Methods(http.MethodGet)
	router.HandleFunc("/v1/localsite", s.dataHandler(func() interface{} {
		if s.LocalSite == nil {
			return nil
		}
		return s.LocalSite
	})).Methods(http.MethodGet)
	router.HandleFunc("/v1/serverInfo", s.dataHandler(func() interface{} {
		return map[string]interface{}{"Version": "9.7"}
	})).Methods(http.MethodGet)

	s.Server = httptest.NewServer(router)
	return s
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.FormValue("grant_type") {
	case "password":
		clientID := r.FormValue("client_id")
		s.TokenRequests = append(s.TokenRequests, clientID)
		if s.AcceptClientID == "" || clientID != s.AcceptClientID {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
			return
		}
	case "refresh_token":
		s.RefreshRequests++
		if s.RejectBearer {
			// Renewal succeeds and lifts the rejection.
			s.RejectBearer = false
			s.AccessToken = s.RenewedToken
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"expires_in":    s.ExpiresIn,
		"scope":         "openid",
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SessionRequests++
	if _, _, ok := r.BasicAuth(); !ok || s.SessionToken == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("X-Zerto-Session", s.SessionToken)
	w.WriteHeader(http.StatusOK)
}

// dataHandler guards a data endpoint with token checks and 404s nil payloads.
func (s *Server) dataHandler(payload func() interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.DataRequests = append(s.DataRequests, r.URL.Path)

		if !s.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body := payload()
		if body == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// authorized accepts either the current bearer token or the session token.
// Caller must hold s.mu.
func (s *Server) authorized(r *http.Request) bool {
	if session := r.Header.Get("X-Zerto-Session"); session != "" {
		return session == s.SessionToken
	}

	bearer := r.Header.Get("Authorization")
	if s.RejectBearer {
		return s.RenewedToken != "" && bearer == "Bearer "+s.RenewedToken
	}
	return bearer == "Bearer "+s.AccessToken
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
