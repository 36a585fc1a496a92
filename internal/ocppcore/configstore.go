package ocppcore

import (
	"sort"
	"strconv"
)

// ConfigEntry is one OCPP 1.6 configuration key/value pair (C2, §3).
type ConfigEntry struct {
	Key      string
	Value    string
	Readonly bool
	Visible  bool
	Reboot   bool
}

// heartbeatAliases keeps the two spellings of the heartbeat-interval key
// that real CSMS implementations send interchangeably in sync.
var heartbeatAliases = []string{"HeartbeatInterval", "HeartBeatInterval"}

// ConfigStore is the station's live, mutable OCPP configuration. Touched
// only from the owning station's execution goroutine.
type ConfigStore struct {
	entries map[string]*ConfigEntry
	order   []string
}

// NewConfigStore builds a store pre-seeded with defaults.
func NewConfigStore(defaults map[string]ConfigEntry) *ConfigStore {
	s := &ConfigStore{entries: make(map[string]*ConfigEntry)}
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := defaults[k]
		e.Key = k
		s.set(k, e)
	}
	return s
}

func (s *ConfigStore) set(key string, e ConfigEntry) {
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	ec := e
	s.entries[key] = &ec
}

// Get returns the entry for key, if present.
func (s *ConfigStore) Get(key string) (ConfigEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return ConfigEntry{}, false
	}
	return *e, true
}

// SetResult reports the effect of a configuration write.
type SetResult int

const (
	SetAccepted SetResult = iota
	SetRejectedReadonly
	SetUnknownKey
	SetRebootRequired
)

// Set writes value to key, handling the HeartbeatInterval/HeartBeatInterval
// alias (§3, §4.2) and surfacing whether the entry demands a reboot.
func (s *ConfigStore) Set(key, value string) SetResult {
	e, ok := s.entries[key]
	if !ok {
		return SetUnknownKey
	}
	if e.Readonly {
		return SetRejectedReadonly
	}
	changed := e.Value != value
	e.Value = value
	if changed && isHeartbeatAlias(key) {
		for _, alias := range heartbeatAliases {
			if alias == key {
				continue
			}
			if other, ok := s.entries[alias]; ok {
				other.Value = value
			}
		}
	}
	if e.Reboot {
		return SetRebootRequired
	}
	return SetAccepted
}

func isHeartbeatAlias(key string) bool {
	for _, alias := range heartbeatAliases {
		if alias == key {
			return true
		}
	}
	return false
}

// ListVisible returns the requested keys (or every visible entry when keys
// is empty) plus the subset of requested keys that don't exist.
func (s *ConfigStore) ListVisible(keys []string) (found []ConfigEntry, unknown []string) {
	if len(keys) == 0 {
		for _, k := range s.order {
			e := s.entries[k]
			if e.Visible {
				found = append(found, *e)
			}
		}
		return found, nil
	}
	for _, k := range keys {
		e, ok := s.entries[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		if e.Visible {
			found = append(found, *e)
		}
	}
	return found, unknown
}

// DefaultConfigEntries returns the baseline configuration keys a simulated
// station boots with, grounded on the fields the teacher's
// station.SimulationConfig/ConnectorConfig already track (heartbeat
// interval, meter value sampling) generalized into live store entries.
func DefaultConfigEntries(connectorCount int, heartbeatIntervalSeconds, meterValueSampleIntervalSeconds int) map[string]ConfigEntry {
	hb := strconv.Itoa(heartbeatIntervalSeconds)
	mv := strconv.Itoa(meterValueSampleIntervalSeconds)
	return map[string]ConfigEntry{
		"HeartbeatInterval":        {Value: hb, Visible: true},
		"HeartBeatInterval":        {Value: hb, Visible: true},
		"MeterValueSampleInterval": {Value: mv, Visible: true},
		"NumberOfConnectors":       {Value: strconv.Itoa(connectorCount), Readonly: true, Visible: true},
		"ConnectionTimeOut":        {Value: "30", Visible: true},
		"WebSocketPingInterval":    {Value: "60", Visible: true},
		"SupportedFeatureProfiles": {
			Value:    "Core,FirmwareManagement,RemoteTrigger,SmartCharging",
			Readonly: true,
			Visible:  true,
		},
		"AuthorizeRemoteTxRequests": {Value: "false", Visible: true},
		"LocalAuthListEnabled":      {Value: "false", Visible: true},
		"StopTransactionOnInvalidId": {Value: "true", Visible: true},
		"ChargeProfileMaxStackLevel": {Value: "8", Readonly: true, Visible: true},
	}
}
