package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/matching"
	"github.com/example/ride-booking/internal/models"
)

// Server exposes the booking and matching services over JSON REST plus a
// notification websocket. Identity arrives as a trusted X-User-ID header
// from the fronting auth layer; the engine only checks ownership.
type Server struct {
	Booking  *booking.Service
	Matching *matching.Service
	WSReg    *dispatch.WSRegistry

	// MatchLimit caps best-ride responses when the client sends no limit.
	MatchLimit int

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(b *booking.Service, m *matching.Service, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{Booking: b, Matching: m, WSReg: wsreg, MatchLimit: 20, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides", s.handleListRides).Methods("GET")
	api.HandleFunc("/rides/best", s.handleBestRides).Methods("GET")
	api.HandleFunc("/rides/{ride_id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/request", s.handleRequestRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/approval", s.handleApproval).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/cancel-request", s.handleCancelRequest).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleCancelRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/complete", s.handleCompleteRide).Methods("POST")
	api.HandleFunc("/requests", s.handleMyRequests).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
		return
	}
	var in struct {
		Pickup        models.Location    `json:"pickup"`
		Dropoff       models.Location    `json:"dropoff"`
		DepartureTime time.Time          `json:"departure_time"`
		TotalSeats    int                `json:"total_seats"`
		Price         float64            `json:"price"`
		Vehicle       models.Vehicle     `json:"vehicle"`
		Preferences   models.Preferences `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	ride, err := s.Booking.CreateRide(r.Context(), uid, booking.CreateRideInput{
		Pickup:        in.Pickup,
		Dropoff:       in.Dropoff,
		DepartureTime: in.DepartureTime,
		TotalSeats:    in.TotalSeats,
		Price:         in.Price,
		Vehicle:       in.Vehicle,
		Preferences:   in.Preferences,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	q := r.URL.Query()
	var f booking.ListFilter
	if q.Get("creator") == "me" {
		if uid == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
			return
		}
		f.CreatorID = uid
	}
	if q.Get("requester") == "me" {
		if uid == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
			return
		}
		f.RequesterID = uid
	}
	f.ActiveOnly = q.Get("active") == "true"
	writeJSON(w, http.StatusOK, s.Booking.ListRides(f))
}

func (s *Server) handleBestRides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pickup, err := parseCoord(q.Get("pickup_lat"), q.Get("pickup_lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_coordinates", "pickup_lat/pickup_lon: "+err.Error())
		return
	}
	dropoff, err := parseCoord(q.Get("dropoff_lat"), q.Get("dropoff_lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_coordinates", "dropoff_lat/dropoff_lon: "+err.Error())
		return
	}
	maxDistance := 0.0
	if v := q.Get("max_distance"); v != "" {
		maxDistance, err = strconv.ParseFloat(v, 64)
		if err != nil || maxDistance <= 0 {
			writeError(w, http.StatusBadRequest, "bad_max_distance", "max_distance must be a positive number of meters")
			return
		}
	}
	limit := s.MatchLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a non-negative integer")
			return
		}
	}
	matches, err := s.Matching.FindBestRides(r.Context(), pickup, dropoff, maxDistance, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Booking.GetRide(mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
		return
	}
	writeJSON(w, http.StatusOK, s.Booking.MyRequests(uid))
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
		return
	}
	req, err := s.Booking.RequestRide(r.Context(), uid, mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
		return
	}
	var in struct {
		RequesterID string `json:"requester_id"`
		Decision    string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	req, err := s.Booking.DecideRequest(r.Context(), uid, mux.Vars(r)["ride_id"], in.RequesterID, models.RequestStatus(in.Decision))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
		return
	}
	req, err := s.Booking.CancelRequest(r.Context(), uid, mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
		return
	}
	ride, err := s.Booking.CancelRide(r.Context(), uid, mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
		return
	}
	ride, err := s.Booking.CompleteRide(r.Context(), uid, mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

var upgrader = websocket.Upgrader{}

// handleWS attaches the caller's notification socket. Browsers cannot set
// headers on websocket dials, so user_id is also accepted as a query param.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		uid = r.URL.Query().Get("user_id")
	}
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upgrade_failed", err.Error())
		return
	}
	s.WSReg.Add(uid, conn)
}

func parseCoord(latStr, lonStr string) (models.Coord, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Coord{}, err
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.Coord{}, err
	}
	return models.Coord{Lat: lat, Lon: lon}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
