package models

import "time"

// -----------------------------------------------------------------------------

// MConfig is the root configuration document.
type MConfig struct {
	Name      string `yaml:"name" toml:"name"`
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"` // "text" or "json"

	Port      int    `yaml:"port" toml:"port"` // REST status API
	GRPC_Host string `yaml:"grpc_host" toml:"grpc_host"`
	GRPC_Port int    `yaml:"grpc_port" toml:"grpc_port"`

	Streaming     MStreamingConfig     `yaml:"streaming" toml:"streaming"`
	Delivery      MDeliveryConfig      `yaml:"delivery" toml:"delivery"`
	Subscriptions MSubscriptionsConfig `yaml:"subscriptions" toml:"subscriptions"`
	NATS          MNATSConfig          `yaml:"nats" toml:"nats"`
	Journal       MJournalConfig       `yaml:"journal" toml:"journal"`
}

// -----------------------------------------------------------------------------

// MStreamingConfig describes the push server and the login used for it.
type MStreamingConfig struct {
	Transport     string `yaml:"transport" toml:"transport"` // registered transport type
	Endpoint      string `yaml:"endpoint" toml:"endpoint"`
	AdapterSet    string `yaml:"adapter_set" toml:"adapter_set"`
	AccountID     string `yaml:"account_id" toml:"account_id"`
	CST           string `yaml:"cst" toml:"cst"`
	SecurityToken string `yaml:"security_token" toml:"security_token"`

	HandshakeTimeout     time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	KeepAlive            time.Duration `yaml:"keep_alive" toml:"keep_alive"`
	StalledTimeout       time.Duration `yaml:"stalled_timeout" toml:"stalled_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval" toml:"reconnect_interval"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay" toml:"max_reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"` // 0 = infinite
	BackoffMultiplier    float64       `yaml:"backoff_multiplier" toml:"backoff_multiplier"`
}

// Password builds the streaming password from the REST session tokens.
func (c MStreamingConfig) Password() string {
	if c.CST == "" && c.SecurityToken == "" {
		return ""
	}
	return "CST-" + c.CST + "|XST-" + c.SecurityToken
}

// -----------------------------------------------------------------------------

// MOverflowPolicy decides what a full listener queue does with a new event.
type MOverflowPolicy string

const (
	OverflowDropOldest MOverflowPolicy = "drop_oldest"
	OverflowDropNewest MOverflowPolicy = "drop_newest"
)

// MDeliveryConfig sizes the per-listener buffers.
type MDeliveryConfig struct {
	BufferSize     int             `yaml:"buffer_size" toml:"buffer_size"`
	OverflowPolicy MOverflowPolicy `yaml:"overflow_policy" toml:"overflow_policy"`
}

// -----------------------------------------------------------------------------

// MSubscriptionsConfig lists what the daemon subscribes to at start-up.
type MSubscriptionsConfig struct {
	Prices   []MPriceSubscription   `yaml:"prices" toml:"prices"`
	Charts   []MChartSubscription   `yaml:"charts" toml:"charts"`
	Markets  []MMarketSubscription  `yaml:"markets" toml:"markets"`
	Accounts []MAccountSubscription `yaml:"accounts" toml:"accounts"`
	Deals    []MAccountSubscription `yaml:"deals" toml:"deals"`
}

// MPriceSubscription subscribes the tick feed of an epic.
type MPriceSubscription struct {
	Epic     string `yaml:"epic" toml:"epic"`
	Fields   string `yaml:"fields" toml:"fields"` // selector name, e.g. "all", "day"
	Snapshot bool   `yaml:"snapshot" toml:"snapshot"`
}

// MChartSubscription subscribes the candles of an epic.
type MChartSubscription struct {
	Epic     string `yaml:"epic" toml:"epic"`
	Interval string `yaml:"interval" toml:"interval"`
	Fields   string `yaml:"fields" toml:"fields"`
}

// MMarketSubscription subscribes the market summary of an epic.
type MMarketSubscription struct {
	Epic   string `yaml:"epic" toml:"epic"`
	Fields string `yaml:"fields" toml:"fields"`
}

// MAccountSubscription subscribes an account level item.
type MAccountSubscription struct {
	AccountID string `yaml:"account_id" toml:"account_id"`
	Fields    string `yaml:"fields" toml:"fields"`
}

// -----------------------------------------------------------------------------

// MNATSConfig configures the event publisher.
type MNATSConfig struct {
	Enabled        bool              `yaml:"enabled" toml:"enabled"`
	Servers        []string          `yaml:"servers" toml:"servers"`
	ClientID       string            `yaml:"client_id" toml:"client_id"`
	SubjectPrefix  string            `yaml:"subject_prefix" toml:"subject_prefix"`
	Serializer     string            `yaml:"serializer" toml:"serializer"` // json, bin, proto
	ConnectTimeout time.Duration     `yaml:"connect_timeout" toml:"connect_timeout"`
	ReconnectWait  time.Duration     `yaml:"reconnect_wait" toml:"reconnect_wait"`
	MaxReconnects  int               `yaml:"max_reconnects" toml:"max_reconnects"`
	FlushTimeout   time.Duration     `yaml:"flush_timeout" toml:"flush_timeout"`
	JetStream      *MJetStreamConfig `yaml:"jetstream" toml:"jetstream"`
}

// MJetStreamConfig enables persistent publishing.
type MJetStreamConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"enabled"`
	StreamName string        `yaml:"stream_name" toml:"stream_name"`
	Subjects   []string      `yaml:"subjects" toml:"subjects"`
	Replicas   int           `yaml:"replicas" toml:"replicas"`
	MaxAge     time.Duration `yaml:"max_age" toml:"max_age"`
	MaxMsgs    int64         `yaml:"max_msgs" toml:"max_msgs"`
	MaxBytes   int64         `yaml:"max_bytes" toml:"max_bytes"`
	MaxMsgSize int           `yaml:"max_msg_size" toml:"max_msg_size"`
}

// -----------------------------------------------------------------------------

// MJournalConfig configures the sqlite event journal.
type MJournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}
