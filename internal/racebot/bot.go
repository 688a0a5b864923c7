package racebot

import (
	"context"
	"fmt"

	"github.com/equinox-racing/racebot/internal/aptos"
	"github.com/equinox-racing/racebot/internal/buildinfo"
	"github.com/equinox-racing/racebot/internal/httputil"
	"github.com/equinox-racing/racebot/internal/logging"
)

// Bot is the wired monitoring loop for one operator account.
type Bot struct {
	*Monitor

	Account  *aptos.Account
	Contract Contract
	Cooldown *CooldownTable
}

// New validates cfg, loads the operator key and connects the components to
// the node at cfg.NodeURL.
func New(ctx context.Context, cfg Config) (*Bot, error) {
	logger := logging.FromContext(ctx).Named("racebot")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	account, err := aptos.NewAccountFromHex(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: BOT_PRIVATE_KEY: %v", ErrConfiguration, err)
	}
	if cfg.AccountAddress != "" {
		addr, err := aptos.ParseAddress(cfg.AccountAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: BOT_ACCOUNT_ADDRESS: %v", ErrConfiguration, err)
		}
		account = account.WithAddress(addr)
	}

	contract, err := NewContract(cfg.ContractAddress, cfg.ModuleName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cooldown, err := NewCooldownTable(cfg.CooldownCapacity, cfg.Cooldown())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	httpClient := httputil.NewClient(httputil.NewUserAgentRoundTripper(buildinfo.UserAgent, nil))
	client := aptos.NewClient(cfg.NodeURL, httpClient)
	sender := aptos.NewSender(client, account, aptos.SenderOptions{
		MaxGasAmount: cfg.MaxGasAmount,
		GasUnitPrice: cfg.GasUnitPrice,
		Expiration:   cfg.TxExpiration,
	})

	monitor := NewMonitor(
		NewReader(client, contract, cfg.StateLayout),
		Evaluator{Cooldown: cfg.Cooldown(), Unit: cfg.TimeUnit},
		NewDispatcher(contract, sender, cooldown, cfg.TxTimeout),
		cooldown,
		MonitorConfig{Interval: cfg.Interval(), MaxConcurrency: cfg.MaxConcurrency},
	)

	logger.Infof("bot initialized with account: %s", account.Address())
	logger.Infof("contract address: %s", contract.Module)
	logger.Infof("node url: %s", client.NodeURL())

	return &Bot{Monitor: monitor, Account: account, Contract: contract, Cooldown: cooldown}, nil
}
