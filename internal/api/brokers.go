package api

import (
	"net/http"

	"taxsync-pro/internal/broker"
	"taxsync-pro/internal/model"
)

type connectRequest struct {
	UserID      string            `json:"userId"`
	BrokerName  string            `json:"brokerName"`
	Credentials model.Credentials `json:"credentials"`
}

func (s *server) connectBroker(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.BrokerName == "" {
		writeError(w, r, &model.ValidationError{Field: "brokerName", Reason: "required"})
		return
	}
	if _, err := s.Catalog.Lookup(req.BrokerName); err != nil {
		writeError(w, r, err)
		return
	}

	in, err := s.Sync.Connect(r.Context(), req.UserID, req.BrokerName, req.Credentials)
	if err != nil && in != nil {
		// Stored disconnected; the broker rejected the credentials.
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to authenticate with broker", Details: err.Error()})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"integration": in,
	})
}

type brokersResponse struct {
	Integrations []model.Integration `json:"integrations"`
	Available    []broker.Config     `json:"availableBrokers"`
	Health       []broker.Health     `json:"health,omitempty"`
}

// listBrokers returns the user's integrations and the catalog. With
// health=true every connected broker is probed as well.
func (s *server) listBrokers(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ints, err := s.Integrations.ListIntegrations(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := brokersResponse{
		Integrations: ints,
		Available:    s.Catalog.List(),
	}
	if resp.Integrations == nil {
		resp.Integrations = []model.Integration{}
	}
	if r.URL.Query().Get("health") == "true" {
		if resp.Health, err = s.Sync.BrokerHealth(r.Context(), uid); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
