package options

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:9464", false},
		{":8080", false},
		{"localhost:80", false},
		{"0.0.0.0:70000", true},
		{"example:80", true},
		{"no-port", true},
	}
	for _, tt := range tests {
		err := ValidateAddress(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
		}
	}
}

func TestSocketOptionsValidate(t *testing.T) {
	o := NewSocketOptions()
	o.URL = "https://api.rideline.app"
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults should be valid, got %v", errs)
	}

	o.URL = "not a url"
	o.Transport = "carrier-pigeon"
	o.Environment = "staging"
	if errs := o.Validate(); len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestReconnectOptionsValidate(t *testing.T) {
	o := NewReconnectOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults should be valid, got %v", errs)
	}
	o.BaseDelay = 0
	o.ProductionMultiplier = 0
	if errs := o.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestAddFlagsPrefixes(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o := NewReconnectOptions()
	o.AddFlags(fs, "driver")

	if err := fs.Parse([]string{"--driver.reconnect.max-attempts=9"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.MaxAttempts != 9 {
		t.Errorf("MaxAttempts = %d, want 9", o.MaxAttempts)
	}
}

func TestMqttToClientConfigCredentials(t *testing.T) {
	o := NewMqttOptions()
	cfg := o.ToClientConfig("D1", "tok")
	if cfg.Username != "D1" || cfg.Password != "tok" {
		t.Errorf("fallback credentials not applied: %+v", cfg)
	}

	o.Username = "svc"
	cfg = o.ToClientConfig("D1", "tok")
	if cfg.Username != "svc" {
		t.Errorf("explicit username overridden: %q", cfg.Username)
	}
	if cfg.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", cfg.KeepAlive)
	}
}
