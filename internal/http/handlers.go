package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-tracking/internal/auth"
	"github.com/example/ride-tracking/internal/geo"
	"github.com/example/ride-tracking/internal/locks"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/notify"
	"github.com/example/ride-tracking/internal/observability"
	"github.com/example/ride-tracking/internal/rides"
	"github.com/example/ride-tracking/internal/storage"
)

// Publisher is the optional event sink for externally reported positions.
type Publisher interface {
	PublishVehiclePosition(p models.VehiclePosition) error
}

// NearbyFinder answers proximity queries, normally backed by Redis GEO.
type NearbyFinder interface {
	Nearby(ctx context.Context, lat, lon, radius float64, limit int) []models.Vehicle
}

type Server struct {
	Rides  *rides.Service
	Locks  *locks.Arbiter
	Store  storage.Store
	Auth   *auth.Service
	Events Publisher    // optional
	Nearby NearbyFinder // optional
	WSReg  *notify.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(svc *rides.Service, arb *locks.Arbiter, store storage.Store, authSvc *auth.Service, wsreg *notify.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{
		Rides:  svc,
		Locks:  arb,
		Store:  store,
		Auth:   authSvc,
		WSReg:  wsreg,
		logger: logger,
		mux:    mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.Auth.Middleware)

	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{id}/accept", s.handleAccept).Methods("POST")
	api.HandleFunc("/rides/{id}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/rides/{id}/end", s.handleEnd).Methods("POST")
	api.HandleFunc("/rides/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/rides/{id}/reject", s.handleReject).Methods("POST")
	api.HandleFunc("/rides/{id}/panic", s.handlePanic).Methods("POST")
	api.HandleFunc("/drivers/offline", s.handleRequestOffline).Methods("POST")
	api.HandleFunc("/vehicles/active", s.handleActiveVehicles).Methods("GET")
	api.HandleFunc("/vehicles/nearby", s.handleNearbyVehicles).Methods("GET")
	api.HandleFunc("/vehicles/{id}/lock", s.handleLock).Methods("POST")
	api.HandleFunc("/vehicles/{id}/unlock", s.handleUnlock).Methods("POST")
	api.HandleFunc("/vehicles/{id}/location", s.handleReportLocation).Methods("POST")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createRideRequest struct {
	Passengers  []string               `json:"passengers,omitempty"`
	Invited     []string               `json:"invited,omitempty"`
	Category    models.VehicleCategory `json:"category"`
	BabySeat    bool                   `json:"baby_seat"`
	PetFriendly bool                   `json:"pet_friendly"`
	Start       models.Coord           `json:"start"`
	End         models.Coord           `json:"end"`
	Stops       []models.Coord         `json:"stops,omitempty"`
	ScheduledAt *time.Time             `json:"scheduled_at,omitempty"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	claims, _ := auth.FromContext(r.Context())
	cmd := rides.CreateCommand{
		Passengers:  req.Passengers,
		Invited:     req.Invited,
		Category:    req.Category,
		BabySeat:    req.BabySeat,
		PetFriendly: req.PetFriendly,
		Start:       req.Start,
		End:         req.End,
		Stops:       req.Stops,
		ScheduledAt: req.ScheduledAt,
	}
	if claims != nil {
		cmd.PassengerID = claims.UserID
	}
	ride, err := s.Rides.Create(r.Context(), cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Rides.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	var driverID string
	if claims != nil {
		driverID = claims.UserID
	}
	ride, err := s.Rides.Accept(r.Context(), mux.Vars(r)["id"], driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Rides.Start(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var conf rides.EndConfirmation
	var body struct {
		Paid             bool `json:"paid"`
		PassengersExited bool `json:"passengers_exited"`
	}
	// empty body means both confirmations default to false
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conf.Paid = body.Paid
	conf.PassengersExited = body.PassengersExited
	ride, err := s.Rides.End(r.Context(), mux.Vars(r)["id"], conf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	claims, _ := auth.FromContext(r.Context())
	actor := ""
	if claims != nil {
		actor = string(claims.Role)
	}
	ride, err := s.Rides.Cancel(r.Context(), mux.Vars(r)["id"], actor, body.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	ride, err := s.Rides.Reject(r.Context(), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	claims, _ := auth.FromContext(r.Context())
	reporter := ""
	if claims != nil {
		reporter = claims.UserID
	}
	ride, err := s.Rides.Panic(r.Context(), mux.Vars(r)["id"], reporter, body.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleRequestOffline(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if err := s.Rides.RequestInactive(claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActiveVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.Store.ActiveVehicles()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vehicles)
}

// handleNearbyVehicles serves proximity queries from the Redis GEO mirror,
// falling back to a haversine scan over active vehicles when no mirror is
// configured.
func (s *Server) handleNearbyVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		http.Error(w, "lat and lon required", http.StatusBadRequest)
		return
	}
	radius := 2000.0
	if v, err := strconv.ParseFloat(q.Get("radius"), 64); err == nil && v > 0 {
		radius = v
	}
	limit := 50
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}

	if s.Nearby != nil {
		s.writeJSON(w, http.StatusOK, s.Nearby.Nearby(r.Context(), lat, lon, radius, limit))
		return
	}

	vehicles, err := s.Store.ActiveVehicles()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]models.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if geo.Haversine(lat, lon, v.Location.Lat, v.Location.Lon) <= radius {
			out = append(out, *v)
			if len(out) == limit {
				break
			}
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

type lockRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var body lockRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	acquired := s.Locks.Acquire(mux.Vars(r)["id"], body.SessionID)
	if acquired {
		observability.LockAcquired.Inc()
	} else {
		observability.LockContention.Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"acquired": acquired})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var body lockRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	s.Locks.Release(mux.Vars(r)["id"], body.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

type locationReport struct {
	SessionID string  `json:"session_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// handleReportLocation accepts a position from an external controller. The
// report doubles as the lock heartbeat: it is refused unless the session
// holds (or can take) the vehicle's lock.
func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	var body locationReport
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	vehicleID := mux.Vars(r)["id"]
	if !s.Locks.Acquire(vehicleID, body.SessionID) {
		observability.LockContention.Inc()
		s.writeJSON(w, http.StatusConflict, map[string]bool{"acquired": false})
		return
	}
	loc := models.Coord{Lat: body.Lat, Lon: body.Lon}
	if err := s.Store.UpdateVehicleLocation(vehicleID, loc); err != nil {
		s.writeError(w, err)
		return
	}
	if s.Events != nil {
		_ = s.Events.PublishVehiclePosition(models.VehiclePosition{
			VehicleID: vehicleID,
			Loc:       loc,
			Reported:  time.Now(),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

// handleWS subscribes the caller to their own ride events. Browsers cannot
// set headers on a WebSocket upgrade, so a token query param is accepted
// alongside the Authorization header; the session is keyed by the resolved
// claims, never by client-chosen input.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	claims, err := s.Auth.ValidateToken(raw)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(claims.UserID, conn)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rides.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, rides.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, rides.ErrUnauthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		s.logger.Error("internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
