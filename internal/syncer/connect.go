package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"

	"taxsync-pro/internal/broker"
	"taxsync-pro/internal/model"
)

// Connect authenticates creds against brokerName and stores the connection.
// A broker that rejects the credentials is stored disconnected with the
// error recorded, and the authentication error is returned.
func (s *Service) Connect(ctx context.Context, userID, brokerName string, creds model.Credentials) (*model.Integration, error) {
	if userID == "" {
		return nil, &model.ValidationError{Field: "userId", Reason: "required"}
	}
	src, err := s.sources.NewSource(brokerName, creds)
	if err != nil {
		return nil, err
	}

	in := model.Integration{
		UserID:      userID,
		Broker:      brokerName,
		Credentials: creds,
		SyncStatus:  model.SyncPending,
	}
	authErr := src.Authenticate(ctx)
	if authErr == nil {
		in.Credentials = src.Credentials()
		in.IsConnected = true
	} else {
		in.SyncStatus = model.SyncError
		in.SyncError = authErr.Error()
	}

	if err := s.integrations.UpsertIntegration(ctx, in); err != nil {
		return nil, fmt.Errorf("save integration: %w", err)
	}
	if authErr != nil {
		log.Printf("[sync] %s failed to connect %s: %v", userID, brokerName, authErr)
		return &in, authErr
	}
	log.Printf("[sync] %s connected %s", userID, brokerName)
	return &in, nil
}

// BrokerHealth probes every connected broker of userID concurrently.
func (s *Service) BrokerHealth(ctx context.Context, userID string) ([]broker.Health, error) {
	ints, err := s.integrations.ListIntegrations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}

	var connected []model.Integration
	for _, in := range ints {
		if in.IsConnected {
			connected = append(connected, in)
		}
	}

	out := make([]broker.Health, len(connected))
	var wg sync.WaitGroup
	for i, in := range connected {
		wg.Add(1)
		go func(i int, in model.Integration) {
			defer wg.Done()
			src, err := s.sources.NewSource(in.Broker, in.Credentials)
			if err != nil {
				out[i] = broker.Health{Broker: in.Broker, Status: broker.Down, CheckedAt: s.opts.Now(), Errors: []string{err.Error()}}
				return
			}
			out[i] = src.HealthCheck(ctx)
		}(i, in)
	}
	wg.Wait()
	return out, nil
}
