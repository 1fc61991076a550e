// Package config loads the pool's YAML configuration file (spec §3) into
// an immutable Config value. The teacher's retrieved pack carries no
// config-file loader of its own; go.yaml.in/yaml/v2 arrives transitively
// through its libp2p/fx dependency graph and is promoted here to direct
// use rather than hand-rolling a parser over flag/stdlib.
package config

import (
	"fmt"
	"os"
	"regexp"

	"go.yaml.in/yaml/v2"
)

// Donation is one entry in the dev-fee split (spec §3).
type Donation struct {
	Address    string  `yaml:"address"`
	Percentage float64 `yaml:"percentage"`
}

// PortConfig describes one Stratum listener. Difficulty, when nonzero,
// replaces StartingDifficulty as the listener's starting difficulty, which
// is also the difficulty vardiff (spec §4.4) uses in its buffer term.
// TargetTime is validated at load but is not passed to the Stratum server:
// vardiff on every listener uses the server's fixed 10-second target time.
type PortConfig struct {
	Port               int    `yaml:"port"`
	StartingDifficulty uint64 `yaml:"starting_difficulty"`
	TargetTime         uint64 `yaml:"target_time"`
	Difficulty         uint64 `yaml:"difficulty"`
}

// FederationConfig enables the optional gossip layer between cooperating
// instances of this pool operator (spec §C.3). A nil *FederationConfig
// disables federation entirely; nothing else in this repository requires
// it to run.
type FederationConfig struct {
	ListenPort int      `yaml:"listen_port"`
	DataDir    string   `yaml:"data_dir"`
	EnableMDNS bool     `yaml:"enable_mdns"`
	Bootnodes  []string `yaml:"bootnodes"`
}

// rawConfig mirrors the on-disk YAML shape. AddressPattern is a string
// here and compiled into a *regexp.Regexp on the exported Config.
type rawConfig struct {
	HashType              string             `yaml:"hash_type"`
	DaemonURL             string             `yaml:"daemon_url"`
	WalletURL             string             `yaml:"wallet_url"`
	PoolWallet            string             `yaml:"pool_wallet"`
	PoolFee               float64            `yaml:"pool_fee"`
	Donations             []Donation         `yaml:"donations"`
	NetworkTransactionFee uint64             `yaml:"network_transaction_fee"`
	MinPayment            float64            `yaml:"min_payment"`
	PaymentDenomination   float64            `yaml:"payment_denomination"`
	PaymentMixin          int                `yaml:"payment_mixin"`
	Ports                 []PortConfig       `yaml:"ports"`
	AddressPattern        string             `yaml:"address_pattern"`
	Federation            *FederationConfig  `yaml:"federation"`
	DatabasePath          string             `yaml:"database_path"`
}

// Config is the immutable, process-wide configuration (spec §3). Load it
// once at startup; nothing in this repository mutates a Config after
// construction.
type Config struct {
	HashType              string
	DaemonURL             string
	WalletURL             string
	PoolWallet            string
	PoolFee               float64
	Donations             []Donation
	NetworkTransactionFee uint64
	MinPayment            float64
	PaymentDenomination   float64
	PaymentMixin          int
	Ports                 []PortConfig
	AddressPattern        *regexp.Regexp
	Federation            *FederationConfig
	DatabasePath          string
}

// Load reads and validates a Config from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := &Config{
		HashType:              raw.HashType,
		DaemonURL:             raw.DaemonURL,
		WalletURL:             raw.WalletURL,
		PoolWallet:            raw.PoolWallet,
		PoolFee:               raw.PoolFee,
		Donations:             raw.Donations,
		NetworkTransactionFee: raw.NetworkTransactionFee,
		MinPayment:            raw.MinPayment,
		PaymentDenomination:   raw.PaymentDenomination,
		PaymentMixin:          raw.PaymentMixin,
		Ports:                 raw.Ports,
		Federation:            raw.Federation,
		DatabasePath:          raw.DatabasePath,
	}

	if raw.AddressPattern != "" {
		re, err := regexp.Compile(raw.AddressPattern)
		if err != nil {
			return nil, fmt.Errorf("config: address_pattern: %w", err)
		}
		cfg.AddressPattern = re
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the minimal structural invariants a loaded Config
// must satisfy before any component is wired against it.
func (c *Config) Validate() error {
	if c.HashType != "cryptonight" && c.HashType != "cryptonight_lite" {
		return fmt.Errorf("config: hash_type must be cryptonight or cryptonight_lite, got %q", c.HashType)
	}
	if c.DaemonURL == "" {
		return fmt.Errorf("config: daemon_url is required")
	}
	if c.WalletURL == "" {
		return fmt.Errorf("config: wallet_url is required")
	}
	if c.PoolWallet == "" {
		return fmt.Errorf("config: pool_wallet is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: database_path is required")
	}
	if c.Federation != nil && c.Federation.ListenPort <= 0 {
		return fmt.Errorf("config: federation.listen_port must be positive when federation is configured")
	}
	if len(c.Ports) == 0 {
		return fmt.Errorf("config: at least one port must be configured")
	}
	for i, p := range c.Ports {
		if p.Port <= 0 {
			return fmt.Errorf("config: ports[%d].port must be positive", i)
		}
		if p.StartingDifficulty == 0 {
			return fmt.Errorf("config: ports[%d].starting_difficulty must be positive", i)
		}
		if p.TargetTime == 0 {
			return fmt.Errorf("config: ports[%d].target_time must be positive", i)
		}
	}
	total := c.PoolFee
	for _, d := range c.Donations {
		total += d.Percentage
	}
	if total < 0 || total >= 100 {
		return fmt.Errorf("config: pool_fee plus donation percentages must be in [0, 100), got %.4f", total)
	}
	return nil
}
