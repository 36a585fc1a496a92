package config

import (
	"time"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	MongoDB     MongoDBConfig     `mapstructure:"mongodb"`
	CSMS        CSMSConfig        `mapstructure:"csms"`
	Application ApplicationConfig `mapstructure:"application"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Fleet       FleetConfig       `mapstructure:"fleet"`
}

// FleetConfig describes the set of simulated stations this process runs.
type FleetConfig struct {
	Stations []StationDescriptorConfig `mapstructure:"stations"`
}

// StationDescriptorConfig is the on-disk shape of one simulated station's
// boot descriptor (ocppcore.Descriptor), kept free of any import on
// internal/ocppcore so the config package has no domain dependency.
type StationDescriptorConfig struct {
	ChargingStationID string   `mapstructure:"charging_station_id"`
	CSMSURL            string   `mapstructure:"csms_url"`
	ConnectorCount     int      `mapstructure:"connector_count"`
	ConnectorMaxPower  int      `mapstructure:"connector_max_power_w"`
	ResetTimeSeconds   int      `mapstructure:"reset_time_seconds"`

	FeatureSmartCharging      bool `mapstructure:"feature_smart_charging"`
	FeatureFirmwareManagement bool `mapstructure:"feature_firmware_management"`
	FeatureRemoteTrigger      bool `mapstructure:"feature_remote_trigger"`

	AuthorizedTags []string `mapstructure:"authorized_tags"`

	RequireAuthorize          bool `mapstructure:"require_authorize"`
	AuthorizeRemoteTxRequests bool `mapstructure:"authorize_remote_tx_requests"`
	LocalAuthListEnabled      bool `mapstructure:"local_auth_list_enabled"`
	MayAuthorizeAtRemoteStart bool `mapstructure:"may_authorize_at_remote_start"`
	OCPPStrictCompliance      bool `mapstructure:"ocpp_strict_compliance"`
	BeginEndMeterValues       bool `mapstructure:"begin_end_meter_values"`
	OutOfOrderEndMeterValues  bool `mapstructure:"out_of_order_end_meter_values"`

	HeartbeatIntervalSeconds        int `mapstructure:"heartbeat_interval_seconds"`
	MeterValueSampleIntervalSeconds int `mapstructure:"meter_value_sample_interval_seconds"`

	ATG ATGConfig `mapstructure:"atg"`
}

// ATGConfig is the on-disk shape of ocppcore.ATGParams.
type ATGConfig struct {
	Enabled                        bool    `mapstructure:"enabled"`
	ProbabilityOfStart              float64 `mapstructure:"probability_of_start"`
	MinDurationSeconds               int     `mapstructure:"min_duration_seconds"`
	MaxDurationSeconds               int     `mapstructure:"max_duration_seconds"`
	MinDelayBetweenTwoTransactions    int     `mapstructure:"min_delay_between_two_transactions_seconds"`
	MaxDelayBetweenTwoTransactions    int     `mapstructure:"max_delay_between_two_transactions_seconds"`
	StopAfterHours                    float64 `mapstructure:"stop_after_hours"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration  `mapstructure:"jwt_expiry"`
	Users     []UserConfig   `mapstructure:"users"`
	APIKeys   []APIKeyConfig `mapstructure:"api_keys"`
}

// UserConfig represents a user in configuration
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
	Enabled      bool   `mapstructure:"enabled"`
}

// APIKeyConfig represents an API key in configuration
type APIKeyConfig struct {
	Name      string `mapstructure:"name"`
	KeyHash   string `mapstructure:"key_hash"`
	Role      string `mapstructure:"role"`
	Enabled   bool   `mapstructure:"enabled"`
	ExpiresAt string `mapstructure:"expires_at,omitempty"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int       `mapstructure:"port"`
	Host string    `mapstructure:"host"`
	TLS  TLSConfig `mapstructure:"tls"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or text
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI               string                   `mapstructure:"uri"`
	Database          string                   `mapstructure:"database"`
	ConnectionTimeout time.Duration            `mapstructure:"connection_timeout"`
	MaxPoolSize       uint64                   `mapstructure:"max_pool_size"`
	Collections       MongoDBCollectionsConfig `mapstructure:"collections"`
	TimeSeries        MongoDBTimeSeriesConfig  `mapstructure:"timeseries"`
}

// MongoDBCollectionsConfig holds collection names
type MongoDBCollectionsConfig struct {
	Messages     string `mapstructure:"messages"`
	Transactions string `mapstructure:"transactions"`
	Stations     string `mapstructure:"stations"`
	Sessions     string `mapstructure:"sessions"`
	MeterValues  string `mapstructure:"meter_values"`
}

// MongoDBTimeSeriesConfig holds time-series configuration
type MongoDBTimeSeriesConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Granularity string `mapstructure:"granularity"` // seconds, minutes, hours
}

// CSMSConfig holds CSMS connection configuration
type CSMSConfig struct {
	DefaultURL           string        `mapstructure:"default_url"`
	ConnectionTimeout    time.Duration `mapstructure:"connection_timeout"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"`
	TLS                  TLSCSMSConfig `mapstructure:"tls"`
}

// TLSCSMSConfig holds TLS configuration for CSMS connections
type TLSCSMSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CACert             string `mapstructure:"ca_cert"`
	ClientCert         string `mapstructure:"client_cert"`
	ClientKey          string `mapstructure:"client_key"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ApplicationConfig holds application-level configuration
type ApplicationConfig struct {
	MaxStations         int           `mapstructure:"max_stations"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	DebugMode           bool          `mapstructure:"debug_mode"`
	MessageBufferSize   int           `mapstructure:"message_buffer_size"`
	BatchInsertInterval time.Duration `mapstructure:"batch_insert_interval"`
}
