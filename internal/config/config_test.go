package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
hash_type: cryptonight
daemon_url: http://127.0.0.1:18081/json_rpc
wallet_url: http://127.0.0.1:18082/json_rpc
pool_wallet: 4Apoolwalletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx
pool_fee: 1.0
donations:
  - address: 4Adevwalletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx
    percentage: 0.5
network_transaction_fee: 7500000000
min_payment: 0.1
payment_denomination: 0.001
payment_mixin: 4
address_pattern: "^4[0-9A-Za-z]{94}$"
database_path: ./pool.db
ports:
  - port: 3333
    starting_difficulty: 1000
    target_time: 10
    difficulty: 0
`

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write sample config: %v", err)
	}
	return path
}

func TestLoad_ParsesAllFields(t *testing.T) {
	path := writeConfigFile(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HashType != "cryptonight" {
		t.Errorf("hash_type = %q", cfg.HashType)
	}
	if len(cfg.Donations) != 1 || cfg.Donations[0].Percentage != 0.5 {
		t.Errorf("donations = %+v", cfg.Donations)
	}
	if len(cfg.Ports) != 1 || cfg.Ports[0].StartingDifficulty != 1000 {
		t.Errorf("ports = %+v", cfg.Ports)
	}
	if cfg.AddressPattern == nil {
		t.Fatal("address_pattern did not compile")
	}
	if !cfg.AddressPattern.MatchString("4" + repeat("a", 94)) {
		t.Error("address_pattern should match a well-formed address")
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestLoad_RejectsUnknownHashType(t *testing.T) {
	const bad = `
hash_type: bogus
daemon_url: http://127.0.0.1:18081/json_rpc
wallet_url: http://127.0.0.1:18082/json_rpc
pool_wallet: 4A
ports:
  - port: 3333
    starting_difficulty: 1000
    target_time: 10
`
	path := writeConfigFile(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an invalid hash_type")
	}
}

func TestValidate_RejectsFeeAtOrAbove100Percent(t *testing.T) {
	cfg := &Config{
		HashType:   "cryptonight",
		DaemonURL:  "http://x",
		WalletURL:  "http://y",
		PoolWallet: "4A",
		PoolFee:      60,
		Donations:    []Donation{{Address: "4B", Percentage: 45}},
		Ports:        []PortConfig{{Port: 3333, StartingDifficulty: 1000, TargetTime: 10}},
		DatabasePath: "/tmp/pool.db",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when fees sum to >= 100%")
	}
}

func TestValidate_RequiresAtLeastOnePort(t *testing.T) {
	cfg := &Config{
		HashType:     "cryptonight",
		DaemonURL:    "http://x",
		WalletURL:    "http://y",
		PoolWallet:   "4A",
		DatabasePath: "/tmp/pool.db",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error with no ports configured")
	}
}

func TestValidate_RejectsZeroStartingDifficulty(t *testing.T) {
	cfg := &Config{
		HashType:     "cryptonight",
		DaemonURL:    "http://x",
		WalletURL:    "http://y",
		PoolWallet:   "4A",
		Ports:        []PortConfig{{Port: 3333, StartingDifficulty: 0, TargetTime: 10}},
		DatabasePath: "/tmp/pool.db",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a zero starting_difficulty")
	}
}
