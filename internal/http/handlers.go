package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/freight-matching/internal/apperr"
	"github.com/example/freight-matching/internal/auth"
	"github.com/example/freight-matching/internal/config"
	"github.com/example/freight-matching/internal/eta"
	"github.com/example/freight-matching/internal/feed"
	"github.com/example/freight-matching/internal/geo"
	"github.com/example/freight-matching/internal/lifecycle"
	"github.com/example/freight-matching/internal/models"
	"github.com/example/freight-matching/internal/notify"
	"github.com/example/freight-matching/internal/observability"
	"github.com/example/freight-matching/internal/payments"
	"github.com/example/freight-matching/internal/storage"
	"github.com/example/freight-matching/internal/tracker"
)

// Store is the combined persistence surface the server needs; both the
// memory and Postgres stores satisfy it.
type Store interface {
	storage.ShipmentStore
	storage.TrackingStore
}

type Server struct {
	Engine    *lifecycle.Engine
	Tracks    storage.TrackingStore
	Feed      *feed.MemoryFeed
	Kafka     *feed.KafkaPublisher
	Positions *geo.RedisPositions
	Router    eta.Client
	Cache     *eta.Cache
	WSReg     *notify.WSRegistry

	jwtSecret    string
	staleAfter   time.Duration
	defaultSpeed float64
	logger       *slog.Logger
	mux          *mux.Router
}

// New wires the server from configuration: Postgres when a DSN is present
// with a memory fallback, Kafka and Redis when configured, OSRM when an
// endpoint is given, Stripe when an API key is set.
func New(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var store Store
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Error("postgres unavailable, using memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var kp *feed.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp = feed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var positions *geo.RedisPositions
	if cfg.RedisAddr != "" {
		positions = geo.NewRedisPositions(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}

	var router eta.Client
	if cfg.OSRMEndpoint != "" {
		router = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	var pay lifecycle.Payments
	if cfg.StripeEnabled {
		pay = payments.NewStripeClient()
	}

	wsreg := notify.NewWSRegistry()
	engine := &lifecycle.Engine{
		Store:       store,
		Push:        wsreg,
		Payments:    pay,
		Logger:      logger,
		CallTimeout: cfg.StoreCallTimeout,
	}

	s := &Server{
		Engine:       engine,
		Tracks:       store,
		Feed:         feed.NewMemoryFeed(),
		Kafka:        kp,
		Positions:    positions,
		Router:       router,
		Cache:        eta.NewCache(5 * time.Minute),
		WSReg:        wsreg,
		jwtSecret:    cfg.JWTSecret,
		staleAfter:   cfg.StaleAfter,
		defaultSpeed: cfg.DefaultSpeedMps,
		logger:       logger,
		mux:          mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/shipments", s.handleCreateShipment).Methods("POST")
	api.HandleFunc("/shipments", s.handleListShipments).Methods("GET")
	api.HandleFunc("/shipments/{id}", s.handleGetShipment).Methods("GET")
	api.HandleFunc("/shipments/{id}/assign", s.handleAssign).Methods("POST")
	api.HandleFunc("/shipments/{id}/pickup", s.advanceHandler(models.StatusPickedUp)).Methods("POST")
	api.HandleFunc("/shipments/{id}/start", s.advanceHandler(models.StatusInTransit)).Methods("POST")
	api.HandleFunc("/shipments/{id}/deliver", s.advanceHandler(models.StatusDelivered)).Methods("POST")
	api.HandleFunc("/shipments/{id}/tracking", s.handleAppendTracking).Methods("POST")
	api.HandleFunc("/shipments/{id}/tracking/current", s.handleCurrentPosition).Methods("GET")
	api.HandleFunc("/notifications", s.handleNotifications).Methods("GET")

	ws := s.mux.PathPrefix("/ws").Subrouter()
	ws.Use(s.authMiddleware)
	ws.HandleFunc("/{user_id}", s.handleWS)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	var req models.CreateShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	shipment, err := s.Engine.Create(r.Context(), caller, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, shipment)
}

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	shipments, err := s.Engine.List(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if shipments == nil {
		shipments = []*models.Shipment{}
	}
	s.writeJSON(w, http.StatusOK, shipments)
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	shipment, err := s.Engine.Get(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shipment)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	shipment, err := s.Engine.Assign(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shipment)
}

func (s *Server) advanceHandler(target models.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.FromContext(r.Context())
		shipment, err := s.Engine.Advance(r.Context(), caller, mux.Vars(r)["id"], target)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, shipment)
	}
}

func (s *Server) handleAppendTracking(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	shipment, err := s.Engine.Get(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if shipment.TruckOwnerID != caller.ID {
		s.writeError(w, apperr.New(apperr.PermissionDenied, "only the assigned truck owner may report positions"))
		return
	}
	if shipment.Status != models.StatusInTransit {
		s.writeError(w, apperr.New(apperr.InvalidTransition, "tracking window is not open while %s", shipment.Status))
		return
	}

	var p models.TrackingPoint
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.ShipmentID = shipment.ID
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if err := s.Tracks.Append(r.Context(), p); err != nil {
		s.writeError(w, apperr.Wrap(apperr.UpstreamUnavailable, err, "could not record tracking point"))
		return
	}
	observability.TrackingPointsSeen.Inc()
	_ = s.Feed.Publish(r.Context(), p)
	if s.Kafka != nil {
		if err := s.Kafka.Publish(r.Context(), p); err != nil {
			s.logger.Warn("kafka publish failed", "shipment_id", p.ShipmentID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrentPosition(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	shipment, err := s.Engine.Get(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	// prefer the consumer-maintained Redis cache, fall back to the store
	var point models.TrackingPoint
	var found bool
	if s.Positions != nil {
		point, found = s.Positions.Current(r.Context(), shipment.ID)
	}
	if !found {
		p, err := s.Tracks.Latest(r.Context(), shipment.ID)
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, apperr.New(apperr.NotFound, "no tracking data for shipment %s", shipment.ID))
			return
		}
		if err != nil {
			s.writeError(w, apperr.Wrap(apperr.UpstreamUnavailable, err, "could not read tracking data"))
			return
		}
		point = p
	}

	pos := tracker.ProjectPoint(shipment, point, s.Router, s.Cache, s.defaultSpeed)
	if s.staleAfter > 0 && time.Since(pos.Timestamp) > s.staleAfter {
		pos.Stale = true
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	shipments, err := s.Engine.List(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := notify.Project(shipments, caller.ID, caller.Role)
	if out == nil {
		out = []models.Notification{}
	}
	s.writeJSON(w, http.StatusOK, out)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	id := mux.Vars(r)["user_id"]
	if id != caller.ID {
		s.writeError(w, apperr.New(apperr.PermissionDenied, "cannot open another user's notification stream"))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	body := errorBody{Kind: apperr.KindOf(err), Message: "upstream unavailable"}
	if errors.As(err, &e) {
		body.Message = e.Message
	}
	s.writeJSON(w, apperr.HTTPStatus(err), map[string]errorBody{"error": body})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
