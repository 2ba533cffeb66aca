package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func (s *Server) handleTemperatures(w http.ResponseWriter, r *http.Request) {
	dev := devRequested(r)
	baseURL := s.config.BackendURL(dev)

	resp, err := s.temperatures.Temperatures(r.Context(), baseURL)
	if err != nil {
		s.logger.Error("Failed to build temperature report",
			zap.String("backend", baseURL),
			zap.Bool("dev", dev),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		// clients only rely on the status code
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode temperature report", zap.Error(err))
	}
}

// devRequested reads the dev query flag. Anything strconv.ParseBool rejects is false.
func devRequested(r *http.Request) bool {
	dev, err := strconv.ParseBool(r.URL.Query().Get("dev"))
	return err == nil && dev
}
