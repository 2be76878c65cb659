package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullConfig = `
cloud:
  client_id: ${CLIENTID}
  client_secret: ${CLIENTSECRET}
  thing_id: ${THINGID}
  property_id: ${PROPID}
  device_id: ${DEVICEID:dev-default}
device:
  address: 192.168.1.40
sync:
  poll_interval: 30s
ui:
  port: 9000
  coalesce_window: 200ms
`

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("CLIENTID", "id-1")
	t.Setenv("CLIENTSECRET", "s3cret")
	t.Setenv("THINGID", "thing-1")
	t.Setenv("PROPID", "prop-1")
	t.Setenv("DEVICEID", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"client_id", cfg.Cloud.ClientID, "id-1"},
		{"device_id default", cfg.Cloud.DeviceID, "dev-default"},
		{"token_url", cfg.Cloud.TokenURL, "https://api2.arduino.cc/iot/v1/clients/token"},
		{"rate limit", cfg.Cloud.RateLimitRPS, 1.0},
		{"poll", cfg.Sync.PollInterval.Duration(), 30 * time.Second},
		{"ui port", cfg.UI.Port, 9000},
		{"ui enabled", cfg.UI.Enabled, true},
		{"coalesce", cfg.UI.CoalesceWindow.Duration(), 200 * time.Millisecond},
		{"device timeout", cfg.Device.Timeout.Duration(), 2 * time.Second},
		{"ledger retention", cfg.Ledger.RetentionDays, 30},
		{"log level", cfg.Log.Level, "info"},
		{"shutdown", cfg.ShutdownTimeout.Duration(), 5 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestValidateNamesEveryMissingID(t *testing.T) {
	cfg, err := Parse([]byte("cloud:\n  client_id: abc\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted a config without ids")
	}
	for _, key := range []string{"cloud.client_secret", "cloud.device_id", "cloud.thing_id", "cloud.property_id"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
	if strings.Contains(err.Error(), "cloud.client_id") {
		t.Errorf("error %q names a key that is set", err)
	}
}

func TestValidateMQTTNeedsBroker(t *testing.T) {
	cfg, err := Parse([]byte(`
cloud: {client_id: a, client_secret: b, device_id: c, thing_id: d, property_id: e}
mqtt: {enabled: true}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "mqtt.broker") {
		t.Errorf("Validate = %v, want mqtt.broker error", err)
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	if _, err := Parse([]byte("sync:\n  poll_interval: soon\n")); err == nil {
		t.Error("Parse accepted an invalid duration")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LAMPD_SET", "value")

	tests := []struct {
		in, want string
	}{
		{"${LAMPD_SET}", "value"},
		{"${LAMPD_UNSET_VAR}", ""},
		{"${LAMPD_UNSET_VAR:fallback}", "fallback"},
		{"${LAMPD_SET:fallback}", "value"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
