// Package gohttpd exposes the kea dispatcher as a JSON REST surface.
// Handlers are thin: they validate input, take a configuration snapshot,
// call the dispatcher and translate its outcome into a status code
// (409 conflict, 503 lock busy, 404 not found, 400 bad input, 500 rest).
package gohttpd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/lovi-cloud/keagw/config"
	"github.com/lovi-cloud/keagw/datastore"
	"github.com/lovi-cloud/keagw/httpd"
	"github.com/lovi-cloud/keagw/kea"
	"github.com/lovi-cloud/keagw/kea/gokea"
	"github.com/lovi-cloud/keagw/reslock"
	"github.com/lovi-cloud/keagw/types"
)

const auditListDefault = 100

// GoHTTPd is
type GoHTTPd struct {
	store *config.Store
	ds    datastore.Datastore
	// apiToken is the startup-generated bearer token, used when the
	// configuration does not pin one.
	apiToken string
	logger   *zap.Logger

	// client cache keyed by snapshot identity; the store returns the same
	// *Config until the file changes, so connection pooling survives
	// across requests without caching any backend state.
	mu           sync.Mutex
	cachedCfg    *config.Config
	cachedClient kea.Client
}

// New is
func New(store *config.Store, ds datastore.Datastore, apiToken string, logger *zap.Logger) (httpd.HTTPd, error) {
	return &GoHTTPd{
		store:    store,
		ds:       ds,
		apiToken: apiToken,
		logger:   logger,
	}, nil
}

// Serve is
func (g *GoHTTPd) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: g.routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *GoHTTPd) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", g.loggingHandler(http.NotFoundHandler()))
	mux.Handle("/api/health", g.loggingHandler(g.healthHandler()))
	mux.Handle("/api/leases", g.loggingHandler(g.leasesHandler()))
	mux.Handle("/api/lease/", g.loggingHandler(g.leaseHandler()))
	mux.Handle("/api/reservations", g.loggingHandler(g.reservationsHandler()))
	mux.Handle("/api/reservation/", g.loggingHandler(g.reservationHandler()))
	mux.Handle("/api/promote", g.loggingHandler(g.promoteHandler()))
	mux.Handle("/api/subnets", g.loggingHandler(g.subnetsHandler()))
	mux.Handle("/api/version", g.loggingHandler(g.versionHandler()))
	mux.Handle("/api/kea/config", g.loggingHandler(g.keaConfigHandler()))
	mux.Handle("/api/config", g.loggingHandler(g.configHandler()))
	mux.Handle("/api/audit", g.loggingHandler(g.auditHandler()))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (g *GoHTTPd) loggingHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewV4().String()
		g.logger.Info("http request log",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr))
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		handler.ServeHTTP(sw, r)
		g.logger.Info("http response log",
			zap.String("request_id", reqID),
			zap.Int("code", sw.code))
	})
}

// client returns a dispatcher for the given snapshot, reusing the previous
// one while the configuration is unchanged.
func (g *GoHTTPd) client(cfg *config.Config) (kea.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cachedCfg == cfg && g.cachedClient != nil {
		return g.cachedClient, nil
	}

	lock := reslock.New(cfg.App.LockPath, time.Duration(cfg.App.LockTimeoutSeconds)*time.Second)
	cl, err := gokea.New(gokea.Config{
		URL:      cfg.Kea.ControlAgentURL,
		Username: cfg.Kea.Username,
		Password: cfg.Kea.Password,
		Timeout:  time.Duration(cfg.Kea.TimeoutSeconds) * time.Second,
	}, lock, g.logger)
	if err != nil {
		return nil, err
	}
	g.cachedCfg = cfg
	g.cachedClient = cl
	return cl, nil
}

// snapshot loads the configuration and dispatcher for one request.
// Mutating endpoints additionally require the configured bearer token.
func (g *GoHTTPd) snapshot(w http.ResponseWriter, r *http.Request, mutating bool) (*config.Config, kea.Client, bool) {
	cfg, err := g.store.Snapshot()
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load configuration: %v", err), nil)
		return nil, nil, false
	}
	want := cfg.App.APIToken
	if want == "" {
		want = g.apiToken
	}
	if mutating && want != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
			g.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token", nil)
			return nil, nil, false
		}
	}
	cl, err := g.client(cfg)
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return nil, nil, false
	}
	return cfg, cl, true
}

func (g *GoHTTPd) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, cl, ok := g.snapshot(w, r, false)
		if !ok {
			return
		}
		if _, err := cl.GetVersion(r.Context()); err != nil {
			g.logger.Error("health check failed", zap.Error(err))
			g.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":         "unhealthy",
				"kea_connection": "failed",
				"error":          err.Error(),
			})
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "healthy",
			"kea_connection": "ok",
		})
	})
}

func (g *GoHTTPd) leasesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			g.getLeases(w, r)
		case http.MethodDelete:
			g.deleteLeasesByMAC(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (g *GoHTTPd) getLeases(w http.ResponseWriter, r *http.Request) {
	subnetID, err := subnetIDParam(r)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	_, cl, ok := g.snapshot(w, r, false)
	if !ok {
		return
	}
	leases, err := cl.GetLeases(r.Context(), subnetID)
	if err != nil {
		g.writeFailure(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"leases":  leases,
		"count":   len(leases),
	})
}

func (g *GoHTTPd) deleteLeasesByMAC(w http.ResponseWriter, r *http.Request) {
	mac := r.URL.Query().Get("mac")
	if _, err := types.ParseMAC(mac); err != nil {
		g.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mac %q", mac), nil)
		return
	}
	_, cl, ok := g.snapshot(w, r, true)
	if !ok {
		return
	}
	count, err := cl.DeleteLeasesByMAC(r.Context(), mac)
	if err != nil {
		g.writeFailure(w, err)
		return
	}
	g.audit(r.Context(), httpd.AuditEvent{
		Action: httpd.AuditActionDeleteLeasesByMAC,
		Detail: fmt.Sprintf("deleted %d leases for %s", count, mac),
	}, "", mac)
	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": count,
	})
}

func (g *GoHTTPd) leaseHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ip := strings.TrimPrefix(r.URL.Path, "/api/lease/")
		if _, err := types.ParseIP(ip); err != nil {
			g.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ip address %q", ip), nil)
			return
		}
		_, cl, ok := g.snapshot(w, r, true)
		if !ok {
			return
		}
		if err := cl.DeleteLeaseByIP(r.Context(), ip); err != nil {
			g.writeFailure(w, err)
			return
		}
		g.audit(r.Context(), httpd.AuditEvent{
			Action: httpd.AuditActionDeleteLease,
			Detail: fmt.Sprintf("deleted lease %s", ip),
		}, ip, "")
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": fmt.Sprintf("successfully deleted lease %s", ip),
		})
	})
}

func (g *GoHTTPd) reservationsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		subnetID, err := subnetIDParam(r)
		if err != nil {
			g.writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		_, cl, ok := g.snapshot(w, r, false)
		if !ok {
			return
		}
		reservations, err := cl.GetReservations(r.Context(), subnetID)
		if err != nil {
			g.writeFailure(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":      true,
			"reservations": reservations,
			"count":        len(reservations),
		})
	})
}

func (g *GoHTTPd) reservationHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ip := strings.TrimPrefix(r.URL.Path, "/api/reservation/")
		if _, err := types.ParseIP(ip); err != nil {
			g.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ip address %q", ip), nil)
			return
		}
		subnetID, err := subnetIDParam(r)
		if err != nil {
			g.writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		_, cl, ok := g.snapshot(w, r, true)
		if !ok {
			return
		}
		if err := cl.DeleteReservation(r.Context(), ip, subnetID); err != nil {
			g.writeFailure(w, err)
			return
		}
		g.audit(r.Context(), httpd.AuditEvent{
			Action:   httpd.AuditActionDeleteReservation,
			SubnetID: subnetID,
			Detail:   fmt.Sprintf("deleted reservation %s", ip),
		}, ip, "")
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": fmt.Sprintf("successfully deleted reservation for %s", ip),
		})
	})
}

func (g *GoHTTPd) promoteHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req httpd.PromoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.writeError(w, http.StatusBadRequest, "invalid request body", nil)
			return
		}
		if req.IPAddress == "" || req.HWAddress == "" {
			g.writeError(w, http.StatusBadRequest, "ip_address and hw_address are required", nil)
			return
		}
		if _, err := types.ParseIP(req.IPAddress); err != nil {
			g.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ip address %q", req.IPAddress), nil)
			return
		}
		if _, err := types.ParseMAC(req.HWAddress); err != nil {
			g.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid hardware address %q", req.HWAddress), nil)
			return
		}
		for _, dns := range req.DNSServers {
			if _, err := types.ParseIP(dns); err != nil {
				g.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid dns server %q", dns), nil)
				return
			}
		}

		cfg, cl, ok := g.snapshot(w, r, true)
		if !ok {
			return
		}
		subnetID := req.SubnetID
		if subnetID == nil && cfg.Kea.DefaultSubnetID != 0 {
			sid := cfg.Kea.DefaultSubnetID
			subnetID = &sid
		}

		g.logger.Info("promoting lease",
			zap.String("ip", req.IPAddress),
			zap.String("mac", req.HWAddress),
			zap.Bool("force", req.Force))

		result, err := cl.CreateReservation(r.Context(), kea.CreateReservationRequest{
			IPAddress:  req.IPAddress,
			HWAddress:  req.HWAddress,
			Hostname:   req.Hostname,
			SubnetID:   subnetID,
			DNSServers: req.DNSServers,
			Force:      req.Force,
		})
		if err != nil {
			g.writeFailure(w, err)
			return
		}

		message := fmt.Sprintf("successfully promoted %s to reservation", req.IPAddress)
		if result.Created {
			detail := "created reservation"
			if req.Force {
				detail = "created reservation (forced overwrite)"
			}
			g.audit(r.Context(), httpd.AuditEvent{
				Action:   httpd.AuditActionPromote,
				SubnetID: subnetID,
				Detail:   detail,
			}, req.IPAddress, req.HWAddress)
		} else {
			message = fmt.Sprintf("reservation for %s already exists", req.IPAddress)
		}
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"message":     message,
			"created":     result.Created,
			"reservation": result.Reservation,
		})
	})
}

func (g *GoHTTPd) subnetsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, cl, ok := g.snapshot(w, r, false)
		if !ok {
			return
		}
		subnets, err := cl.GetSubnets(r.Context())
		if err != nil {
			g.writeFailure(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"subnets": subnets,
		})
	})
}

func (g *GoHTTPd) versionHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, cl, ok := g.snapshot(w, r, false)
		if !ok {
			return
		}
		version, err := cl.GetVersion(r.Context())
		if err != nil {
			g.writeFailure(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"version": version,
		})
	})
}

func (g *GoHTTPd) keaConfigHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, cl, ok := g.snapshot(w, r, false)
		if !ok {
			return
		}
		doc, err := cl.GetConfig(r.Context())
		if err != nil {
			g.writeFailure(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"config":  doc,
		})
	})
}

func (g *GoHTTPd) configHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			g.getConfig(w, r)
		case http.MethodPost:
			g.saveConfig(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (g *GoHTTPd) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := g.store.Snapshot()
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"config":  configView(cfg.Sanitized()),
		"path":    g.store.Path(),
	})
}

func (g *GoHTTPd) saveConfig(w http.ResponseWriter, r *http.Request) {
	current, _, ok := g.snapshot(w, r, true)
	if !ok {
		return
	}

	var body struct {
		Config *configPayload `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Config == nil {
		g.writeError(w, http.StatusBadRequest, "configuration object is required", nil)
		return
	}
	next := body.Config.toConfig()
	if next.Kea.ControlAgentURL == "" {
		g.writeError(w, http.StatusBadRequest, "kea.control_agent_url is required", nil)
		return
	}
	// A sanitized view round trips the mask, not the secret.
	if next.Kea.Password == config.PasswordMask {
		next.Kea.Password = current.Kea.Password
	}
	// Not settable over the API.
	next.App.APIToken = current.App.APIToken
	next.App.SecretsPath = current.App.SecretsPath

	if err := g.store.Save(next); err != nil {
		g.writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	g.logger.Info("configuration saved", zap.String("path", g.store.Path()))
	g.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("configuration saved to %s", g.store.Path()),
	})
}

func (g *GoHTTPd) auditHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		limit := auditListDefault
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				g.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v), nil)
				return
			}
			limit = n
		}
		events, err := g.ds.ListAuditEvents(r.Context(), limit)
		if err != nil {
			g.writeError(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"events":  events,
			"count":   len(events),
		})
	})
}

// audit records a mutation best effort; a storage failure must never fail
// the mutation it describes.
func (g *GoHTTPd) audit(ctx context.Context, event httpd.AuditEvent, ip, mac string) {
	event.ID = uuid.NewV4()
	event.CreatedAt = time.Now().UTC()
	if ip != "" {
		if parsed, err := types.ParseIP(ip); err == nil {
			event.IPAddress = parsed
		}
	}
	if mac != "" {
		if parsed, err := types.ParseMAC(mac); err == nil {
			event.HWAddress = parsed
		}
	}
	if err := g.ds.PutAuditEvent(ctx, event); err != nil {
		g.logger.Warn("failed to record audit event",
			zap.String("action", event.Action), zap.Error(err))
	}
}

func (g *GoHTTPd) writeFailure(w http.ResponseWriter, err error) {
	var conflict *kea.ConflictError
	if errors.As(err, &conflict) {
		g.writeError(w, http.StatusConflict, conflict.Reason, map[string]interface{}{
			"existing_reservation": conflict.Existing,
		})
		return
	}
	if errors.Is(err, reslock.ErrTimeout) {
		g.writeError(w, http.StatusServiceUnavailable,
			"another reservation change is in progress, retry shortly", map[string]interface{}{
				"retryable": true,
			})
		return
	}
	var notFound *kea.NotFoundError
	if errors.As(err, &notFound) {
		g.writeError(w, http.StatusNotFound, notFound.Error(), nil)
		return
	}
	g.logger.Error("request failed", zap.Error(err))
	g.writeError(w, http.StatusInternalServerError, err.Error(), nil)
}

func (g *GoHTTPd) writeError(w http.ResponseWriter, code int, message string, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	for k, v := range extra {
		payload[k] = v
	}
	g.writeJSON(w, code, payload)
}

func (g *GoHTTPd) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("failed to encode response", zap.Error(err))
	}
}

func subnetIDParam(r *http.Request) (*int, error) {
	v := r.URL.Query().Get("subnet_id")
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet_id %q", v)
	}
	return &n, nil
}
