// Package neo drives GAS transfers on a Neo N3 network from the faucet's
// funding account.
package neo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/encoding/fixedn"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/gas"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/trigger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

const defaultPollInterval = time.Second

// ErrNotConfirmed is returned when a submitted transaction expired without
// being included in a block.
var ErrNotConfirmed = errors.New("transaction was not included before it expired")

// Config configures the funding account and the amount paid per transfer.
type Config struct {
	RPCURL       string
	SenderWIF    string
	Amount       string // decimal GAS, e.g. "10"
	PollInterval time.Duration
	DialTimeout  time.Duration
}

// tokenTransferrer is the NEP-17 transfer call of the GAS contract wrapper.
type tokenTransferrer interface {
	Transfer(from util.Uint160, to util.Uint160, amount *big.Int, data any) (util.Uint256, uint32, error)
}

// chainReader is the subset of the RPC client used to confirm transfers.
type chainReader interface {
	GetApplicationLog(hash util.Uint256, trig *trigger.Type) (*result.ApplicationLog, error)
	GetBlockCount() (uint32, error)
}

// Ledger implements the faucet's transfer primitive.
type Ledger struct {
	token        tokenTransferrer
	chain        chainReader
	from         util.Uint160
	amount       *big.Int
	pollInterval time.Duration
	logger       *slog.Logger
	closeFn      func()
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New dials the RPC node and prepares the funding account.
func New(ctx context.Context, cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("neo rpc url is required")
	}
	acc, err := wallet.NewAccountFromWIF(strings.TrimSpace(cfg.SenderWIF))
	if err != nil {
		return nil, fmt.Errorf("load sender key: %w", err)
	}
	amount, err := ParseAmount(cfg.Amount)
	if err != nil {
		return nil, err
	}

	client, err := rpcclient.New(ctx, cfg.RPCURL, rpcclient.Options{DialTimeout: cfg.DialTimeout})
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	if err := client.Init(); err != nil {
		client.Close()
		return nil, fmt.Errorf("init rpc client: %w", err)
	}
	act, err := actor.NewSimple(client, acc)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create actor: %w", err)
	}

	l := newLedger(gas.New(act), client, acc.ScriptHash(), amount, cfg.PollInterval, opts...)
	l.closeFn = client.Close
	l.logger.InfoContext(ctx, "neo ledger ready",
		"rpc", cfg.RPCURL,
		"sender", acc.Address,
		"amount", cfg.Amount,
	)
	return l, nil
}

func newLedger(token tokenTransferrer, chain chainReader, from util.Uint160, amount *big.Int, poll time.Duration, opts ...Option) *Ledger {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	l := &Ledger{
		token:        token,
		chain:        chain,
		from:         from,
		amount:       amount,
		pollInterval: poll,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ParseAmount converts a decimal GAS amount into the contract's integer units.
func ParseAmount(s string) (*big.Int, error) {
	f, err := fixedn.Fixed8FromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if f <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", s)
	}
	return big.NewInt(int64(f)), nil
}

// ValidAddress reports whether addr is a well-formed Neo N3 address.
func (l *Ledger) ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	_, err := address.StringToUint160(addr)
	return err == nil
}

// Transfer sends the configured amount to addr and waits until the
// transaction executes. It returns the 0x-prefixed transaction hash.
func (l *Ledger) Transfer(ctx context.Context, addr string) (string, error) {
	to, err := address.StringToUint160(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", addr, err)
	}

	hash, validUntil, err := l.token.Transfer(l.from, to, l.amount, nil)
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	txID := "0x" + hash.StringLE()
	l.logger.InfoContext(ctx, "transfer submitted", "tx_id", txID, "valid_until_block", validUntil)

	if err := l.await(ctx, hash, validUntil); err != nil {
		return "", fmt.Errorf("confirm transfer %s: %w", txID, err)
	}
	return txID, nil
}

// await polls the application log until the transaction executes, the
// context ends, or the chain passes the transaction's validity height.
func (l *Ledger) await(ctx context.Context, hash util.Uint256, validUntil uint32) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		appLog, err := l.chain.GetApplicationLog(hash, nil)
		if err == nil && appLog != nil && len(appLog.Executions) > 0 {
			exec := appLog.Executions[0]
			if exec.VMState != vmstate.Halt {
				return fmt.Errorf("execution ended in %s: %s", exec.VMState, exec.FaultException)
			}
			return nil
		}
		if height, herr := l.chain.GetBlockCount(); herr == nil && height > validUntil+1 {
			return ErrNotConfirmed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the RPC connection.
func (l *Ledger) Close() {
	if l.closeFn != nil {
		l.closeFn()
	}
}
