package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sennavault.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"wallet": {
			"owners": ["0x00000000000000000000000000000000000000a1"],
			"threshold": 1
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if cfg.Storage.EventArchive.Driver != "memory" || cfg.Autopay.Queue.Driver != "memory" {
		t.Fatalf("unexpected drivers: %+v", cfg)
	}
	if cfg.Autopay.Workers != 4 || cfg.Autopay.MaxRetries != 3 {
		t.Fatalf("unexpected autopay defaults: %+v", cfg.Autopay)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
	if cfg.Chain.ReceiptTimeoutSeconds != 120 {
		t.Fatalf("unexpected receipt timeout %d", cfg.Chain.ReceiptTimeoutSeconds)
	}
}

func TestLoadValidates(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"missing owners", `{"wallet":{"threshold":1}}`},
		{"bad threshold", `{"wallet":{"owners":["0x00000000000000000000000000000000000000a1"],"threshold":0}}`},
		{"chain enabled without rpc", `{
			"wallet":{"owners":["0x00000000000000000000000000000000000000a1"],"threshold":1},
			"chain":{"enabled":true}
		}`},
		{"relay enabled without policy", `{
			"wallet":{"owners":["0x00000000000000000000000000000000000000a1"],"threshold":1},
			"relay":{"enabled":true}
		}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, dir, tc.content)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestCredentialKeyFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SENNAVAULT_TEST_KEY", "from-env")
	path := writeConfig(t, dir, `{
		"wallet": {
			"owners": ["0x00000000000000000000000000000000000000a1"],
			"threshold": 1
		},
		"auth": {
			"mode": "keyring",
			"credentials": [
				{"name": "ops", "key_env": "SENNAVAULT_TEST_KEY", "address": "0x00000000000000000000000000000000000000a1"}
			]
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Credentials[0].Key != "from-env" {
		t.Fatalf("expected key from env, got %q", cfg.Auth.Credentials[0].Key)
	}
}
