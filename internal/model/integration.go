package model

import "time"

// Credentials are the broker secrets a user supplies when connecting.
// Which fields are required depends on the broker's auth type.
type Credentials struct {
	APIKey      string `json:"apiKey,omitempty"`
	APISecret   string `json:"apiSecret,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	ClientCode  string `json:"clientCode,omitempty"`
	PIN         string `json:"pin,omitempty"`
	TOTPSecret  string `json:"totpSecret,omitempty"`
}

// SyncStatus is the outcome of the last sync for one integration.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// Integration is a user's connection to one broker.
type Integration struct {
	UserID      string      `json:"userId"`
	Broker      string      `json:"brokerName"`
	Credentials Credentials `json:"-"`
	IsConnected bool        `json:"isConnected"`
	LastSync    time.Time   `json:"lastSync"`
	SyncStatus  SyncStatus  `json:"syncStatus"`
	SyncError   string      `json:"syncError,omitempty"`
}

// SyncEventType labels a step in a sync run.
type SyncEventType string

const (
	EventSyncStarted   SyncEventType = "sync_started"
	EventBrokerSynced  SyncEventType = "broker_synced"
	EventBrokerFailed  SyncEventType = "broker_failed"
	EventSyncCompleted SyncEventType = "sync_completed"
)

// SyncEvent is pushed to dashboards while a sync run progresses.
type SyncEvent struct {
	Type          SyncEventType `json:"type"`
	UserID        string        `json:"userId"`
	RunID         string        `json:"runId"`
	Broker        string        `json:"broker,omitempty"`
	Holdings      int           `json:"holdings,omitempty"`
	Opportunities int           `json:"opportunities,omitempty"`
	Error         string        `json:"error,omitempty"`
	TS            time.Time     `json:"ts"`
}
