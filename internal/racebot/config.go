package racebot

import (
	"fmt"
	"strings"
	"time"

	"github.com/equinox-racing/racebot/internal/aptos"
)

const (
	DefaultNodeURL         = "https://api.testnet.aptoslabs.com/v1"
	DefaultContractAddress = "0x1b5957414b227d9fedd6015c2b53e648166cc552b6b9747a68c496c5b45086f7"
	DefaultModuleName      = "equinox_v3"
)

type Config struct {
	// Aptos node REST endpoint including the version path
	NodeURL string `envconfig:"NODE_URL" default:"https://api.testnet.aptoslabs.com/v1"`

	// Address the race module is published under
	ContractAddress string `envconfig:"CONTRACT_ADDRESS" default:"0x1b5957414b227d9fedd6015c2b53e648166cc552b6b9747a68c496c5b45086f7"`
	ModuleName      string `envconfig:"CONTRACT_MODULE" default:"equinox_v3"`

	// Operator ed25519 private key, hex. Required
	PrivateKey string `envconfig:"BOT_PRIVATE_KEY"`

	// Only needed when the operator account rotated its authentication key
	AccountAddress string `envconfig:"BOT_ACCOUNT_ADDRESS"`

	// Seconds between two polling cycles
	CheckInterval int `envconfig:"BOT_CHECK_INTERVAL" default:"5"`

	// Minimum seconds between two advances of the same race
	AdvanceCooldown int `envconfig:"RACE_ADVANCE_COOLDOWN" default:"8"`

	// Upper bound for build+sign+submit+confirm of one transaction
	TxTimeout    time.Duration `envconfig:"BOT_TX_TIMEOUT" default:"30s"`
	TxExpiration time.Duration `envconfig:"BOT_TX_EXPIRATION" default:"60s"`
	MaxGasAmount uint64        `envconfig:"BOT_MAX_GAS_AMOUNT" default:"200000"`
	GasUnitPrice uint64        `envconfig:"BOT_GAS_UNIT_PRICE" default:"100"`

	// Races processed in parallel per cycle, 0 means all of them
	MaxConcurrency int `envconfig:"BOT_MAX_CONCURRENCY" default:"0"`

	// Race ids remembered by the advance cooldown table
	CooldownCapacity int `envconfig:"BOT_COOLDOWN_CAPACITY" default:"4096"`

	// Unit of the on-chain start_time, us for equinox_v3, ms for the legacy module
	TimeUnit TimeUnit `envconfig:"RACE_TIME_UNIT" default:"us"`

	// Shape of get_race_state: tuple for equinox_v3, object for the legacy module
	StateLayout StateLayout `envconfig:"RACE_STATE_LAYOUT" default:"tuple"`

	// Port of the health endpoint
	Port string `envconfig:"BOT_PORT" default:"8000"`

	Debug bool `envconfig:"BOT_DEBUG" default:"false"`
}

// Validate reports problems that must stop the process before the loop
// starts. A missing operator key is wrapped in ErrConfiguration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.PrivateKey) == "" {
		return fmt.Errorf("%w: BOT_PRIVATE_KEY is required", ErrConfiguration)
	}
	if _, err := aptos.ParseAddress(c.ContractAddress); err != nil {
		return fmt.Errorf("%w: CONTRACT_ADDRESS: %v", ErrConfiguration, err)
	}
	if c.AccountAddress != "" {
		if _, err := aptos.ParseAddress(c.AccountAddress); err != nil {
			return fmt.Errorf("%w: BOT_ACCOUNT_ADDRESS: %v", ErrConfiguration, err)
		}
	}
	if c.ModuleName == "" {
		return fmt.Errorf("%w: CONTRACT_MODULE is empty", ErrConfiguration)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: BOT_CHECK_INTERVAL must be positive", ErrConfiguration)
	}
	if c.AdvanceCooldown < 0 {
		return fmt.Errorf("%w: RACE_ADVANCE_COOLDOWN must not be negative", ErrConfiguration)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("%w: BOT_TX_TIMEOUT must be positive", ErrConfiguration)
	}
	if c.CooldownCapacity <= 0 {
		return fmt.Errorf("%w: BOT_COOLDOWN_CAPACITY must be positive", ErrConfiguration)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: BOT_MAX_CONCURRENCY must not be negative", ErrConfiguration)
	}

	return nil
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.AdvanceCooldown) * time.Second
}

// TimeUnit is the resolution of timestamps stored by the contract.
type TimeUnit string

const (
	Microseconds TimeUnit = "us"
	Milliseconds TimeUnit = "ms"
)

// Decode implements envconfig.Decoder.
func (u *TimeUnit) Decode(value string) error {
	switch v := TimeUnit(strings.ToLower(strings.TrimSpace(value))); v {
	case Microseconds, Milliseconds:
		*u = v
		return nil
	default:
		return fmt.Errorf("unknown time unit %q, want us or ms", value)
	}
}

// Timestamp expresses t since the unix epoch in the unit.
func (u TimeUnit) Timestamp(t time.Time) uint64 {
	if u == Milliseconds {
		return uint64(t.UnixMilli())
	}
	return uint64(t.UnixMicro())
}

// StateLayout is the shape of the get_race_state view response.
type StateLayout string

const (
	LayoutTuple  StateLayout = "tuple"
	LayoutObject StateLayout = "object"
)

// Decode implements envconfig.Decoder.
func (l *StateLayout) Decode(value string) error {
	switch v := StateLayout(strings.ToLower(strings.TrimSpace(value))); v {
	case LayoutTuple, LayoutObject:
		*l = v
		return nil
	default:
		return fmt.Errorf("unknown state layout %q, want tuple or object", value)
	}
}
