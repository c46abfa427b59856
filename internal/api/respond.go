package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/syncer"
)

// errNoData marks a request for a user with nothing stored.
var errNoData = errors.New("no portfolio data")

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// writeError maps err to a status. Unexpected errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	var ue *model.UnsupportedBrokerError
	switch {
	case errors.As(err, &ve), errors.As(err, &ue):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, syncer.ErrNoIntegrations), errors.Is(err, errNoData):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, syncer.ErrAllBrokersFailed):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: syncer.ErrAllBrokersFailed.Error(), Details: err.Error()})
	default:
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &model.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("userId"))
	if id == "" {
		return "", &model.ValidationError{Field: "userId", Reason: "required"}
	}
	return id, nil
}

// parseDate accepts RFC 3339 or a bare YYYY-MM-DD, read as IST midnight.
func parseDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, &model.ValidationError{Field: field, Reason: "required"}
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, markethours.IST)
	if err != nil {
		return time.Time{}, &model.ValidationError{Field: field, Reason: "expected YYYY-MM-DD or RFC 3339 date"}
	}
	return t, nil
}
