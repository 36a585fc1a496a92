package ocppcore

import "testing"

func TestConfigStore_Set(t *testing.T) {
	store := NewConfigStore(DefaultConfigEntries(2, 60, 30))

	tests := []struct {
		name   string
		key    string
		value  string
		want   SetResult
	}{
		{"accepted write", "MeterValueSampleInterval", "45", SetAccepted},
		{"unknown key", "NoSuchKey", "1", SetUnknownKey},
		{"readonly rejected", "NumberOfConnectors", "5", SetRejectedReadonly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.Set(tt.key, tt.value); got != tt.want {
				t.Errorf("Set(%q, %q) = %v, want %v", tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func TestConfigStore_HeartbeatAliasSync(t *testing.T) {
	store := NewConfigStore(DefaultConfigEntries(1, 60, 30))

	store.Set("HeartbeatInterval", "120")

	e, ok := store.Get("HeartBeatInterval")
	if !ok {
		t.Fatal("expected HeartBeatInterval entry to exist")
	}
	if e.Value != "120" {
		t.Errorf("expected alias to sync to 120, got %s", e.Value)
	}
}

func TestConfigStore_ListVisible(t *testing.T) {
	store := NewConfigStore(DefaultConfigEntries(1, 60, 30))

	found, unknown := store.ListVisible([]string{"HeartbeatInterval", "DoesNotExist"})
	if len(found) != 1 {
		t.Fatalf("expected 1 found entry, got %d", len(found))
	}
	if len(unknown) != 1 || unknown[0] != "DoesNotExist" {
		t.Errorf("expected DoesNotExist to be reported unknown, got %v", unknown)
	}

	all, _ := store.ListVisible(nil)
	if len(all) == 0 {
		t.Error("expected ListVisible(nil) to return every visible entry")
	}
}
