package models

// -----------------------------------------------------------------------------

// MSessionStatus represents the runtime status and technical metadata of the
// streaming session. It aggregates information from the session state machine
// and its subscription registry.
type MSessionStatus struct {
	Name          string              `json:"name"`          // The configured application name
	Status        string              `json:"status"`        // Rendered MConnectionStatus
	Connected     bool                `json:"connected"`     // From MConnectionStatus.IsConnected()
	Endpoint      string              `json:"endpoint"`      // Streaming endpoint (credentials masked)
	AccountID     string              `json:"account_id"`    // Account used to log in
	Subscriptions []MSubscriptionInfo `json:"subscriptions"` // Registry entries
}

// MPublisherStats counts publish outcomes since start.
type MPublisherStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// MJournalStats counts journal writes since start.
type MJournalStats struct {
	Candles uint64 `json:"candles"`
	Deals   uint64 `json:"deals"`
	Failed  uint64 `json:"failed"`
}

// MIngestorStats aggregates the event counters of the daemon. Sections of
// disabled sinks are nil.
type MIngestorStats struct {
	Events    uint64           `json:"events"`
	Publisher *MPublisherStats `json:"publisher,omitempty"`
	Journal   *MJournalStats   `json:"journal,omitempty"`
}
