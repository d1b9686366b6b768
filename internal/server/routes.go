package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/zsiec/fdclink/internal/errors"
	"github.com/zsiec/fdclink/internal/health"
	"github.com/zsiec/fdclink/internal/link"
	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/telemetry"
	"github.com/zsiec/fdclink/pkg/version"
)

// LinkResponse is the body of /api/v1/link.
type LinkResponse struct {
	link.Stats
	ValidFraction float64 `json:"valid_ratio"`
}

// SchemaResponse describes one registered frame layout.
type SchemaResponse struct {
	Name       string            `json:"name"`
	Tag        string            `json:"tag"`
	Length     int               `json:"length"`
	BodyLength int               `json:"body_length"`
	Fields     []telemetry.Field `json:"fields"`
}

func (s *Server) setupRoutes() {
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)

	healthHandler := health.NewHandler(s.healthMgr)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/link", s.handleLink).Methods("GET", "OPTIONS")
	api.HandleFunc("/link/up", s.handleLinkUp).Methods("GET", "OPTIONS")
	api.HandleFunc("/schemas", s.handleSchemas).Methods("GET", "OPTIONS")
	api.HandleFunc("/schemas/{name}", s.handleSchema).Methods("GET", "OPTIONS")

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, r, http.StatusOK, version.GetInfo())
}

// handleLink reports the driver's counters and the last frame seen.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	st := s.stats()
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, r, http.StatusOK, LinkResponse{Stats: st, ValidFraction: st.ValidRatio()})
}

// handleLinkUp answers 503 while no source is open, for probes that only
// care about the link itself.
func (s *Server) handleLinkUp(w http.ResponseWriter, r *http.Request) {
	st := s.stats()
	if !st.Connected {
		s.errorHandler.HandleError(w, r, apperrors.NewLinkDownError(st.LastError))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"connected":     true,
		"source":        st.Source,
		"last_frame_at": st.LastFrameAt,
	})
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	schemas := s.registry.Schemas()
	out := make([]SchemaResponse, 0, len(schemas))
	for _, sc := range schemas {
		out = append(out, schemaResponse(sc))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sc, ok := s.registry.ByName(name)
	if !ok {
		var known []string
		for _, sc := range s.registry.Schemas() {
			known = append(known, sc.Name)
		}
		s.errorHandler.HandleError(w, r, apperrors.NewUnknownSchemaError(name, known))
		return
	}
	s.writeJSON(w, r, http.StatusOK, schemaResponse(sc))
}

func schemaResponse(sc *telemetry.Schema) SchemaResponse {
	return SchemaResponse{
		Name:       sc.Name,
		Tag:        sc.Tag.String(),
		Length:     sc.Length,
		BodyLength: sc.BodyLength(),
		Fields:     sc.Fields,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("Failed to encode response")
	}
}
