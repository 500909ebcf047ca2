package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/charity-drive/internal/call"
	"github.com/example/charity-drive/internal/chat"
	"github.com/example/charity-drive/internal/coordinator"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/store"
)

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var in coordinator.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.Coord.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	rides, err := s.Coord.ListPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rides == nil {
		rides = []*models.RideRequest{}
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Coord.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == "" {
		writeJSONError(w, http.StatusBadRequest, "driver_id is required")
		return
	}
	ride, err := s.Coord.Accept(r.Context(), mux.Vars(r)["id"], body.DriverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	if err := s.Coord.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArrive(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Coord.Arrive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Coord.Complete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sender models.Role `json:"sender"`
		Text   string      `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "sender and text are required")
		return
	}
	if body.Sender != models.RoleRider && body.Sender != models.RoleDriver {
		writeJSONError(w, http.StatusBadRequest, "sender must be rider or driver")
		return
	}
	msg, err := s.Chat.Send(r.Context(), mux.Vars(r)["id"], body.Sender, body.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chat.History(mux.Vars(r)["id"]))
}

func (s *Server) handleFareQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pickup, err1 := parseCoord(q.Get("pickup_lat"), q.Get("pickup_lng"))
	dropoff, err2 := parseCoord(q.Get("dropoff_lat"), q.Get("dropoff_lng"))
	if err1 != nil || err2 != nil {
		writeJSONError(w, http.StatusBadRequest, "pickup_lat, pickup_lng, dropoff_lat and dropoff_lng are required")
		return
	}
	multiplier := 1.0
	if optID := q.Get("option"); optID != "" {
		opt, ok := models.RideOptionByID(optID)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown ride option: "+optID)
			return
		}
		multiplier = opt.Multiplier
	}
	writeJSON(w, http.StatusOK, s.Estimator.Estimate(r.Context(), pickup, dropoff, multiplier))
}

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := parseCoord(q.Get("lat"), q.Get("lng"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing latitude or longitude parameters")
		return
	}
	address, err := s.Geocoder.Reverse(r.Context(), c, q.Get("lang"))
	if err != nil {
		s.logger.Error("reverse geocode failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to get address from geocoding service")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}

func (s *Server) handleSearchLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if len(query) < 3 {
		writeJSONError(w, http.StatusBadRequest, "search query must be at least 3 characters long")
		return
	}
	places, err := s.Geocoder.Search(r.Context(), query, q.Get("lang"), 5)
	if err != nil {
		s.logger.Error("location search failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to search for locations")
		return
	}
	writeJSON(w, http.StatusOK, places)
}

func (s *Server) handleRideOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.RideOptions)
}

func (s *Server) handleCharities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Charities)
}

// writeError maps domain errors onto HTTP statuses. Conflicts carry a
// "no longer available" message so UIs can show the right thing.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "ride not found")
	case errors.Is(err, store.ErrConflict):
		writeJSONError(w, http.StatusConflict, "ride is no longer available")
	case errors.Is(err, store.ErrInvalidRide):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrRideClosed), errors.Is(err, call.ErrRideClosed), errors.Is(err, call.ErrCallInProgress):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, call.ErrNoCall):
		writeJSONError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func parseCoord(latStr, lngStr string) (models.Coord, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Coord{}, err
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return models.Coord{}, err
	}
	return models.Coord{Lat: lat, Lng: lng}, nil
}
