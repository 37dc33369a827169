// Package wallet connects the ledger to the Solana network: it reads
// balances, verifies transfers reported by clients and, for operator
// keys held by the CLI, sends native transfers.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/iho/loanledger/internal/domain"
)

// Wallet errors
var (
	ErrUserRejected        = errors.New("wallet: transfer rejected")
	ErrProviderUnavailable = errors.New("wallet: provider unavailable")
	ErrNetworkMismatch     = errors.New("wallet: network mismatch")
	ErrInvalidSignature    = errors.New("wallet: invalid signature")
)

// LamportDecimals is the precision of the native SOL balance.
const LamportDecimals = 9

// genesisHashes identifies the public clusters.
var genesisHashes = map[string]string{
	"mainnet-beta": "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d",
	"testnet":      "4uhcVJyU9pJkvQyS88uRDiswHXSCkY3zQawwpjk2NsNY",
	"devnet":       "EtWTRABZaYq6iMfeYKouRu166VU2xqa1wcaWoxPkrZBG",
}

var clusters = map[string]rpc.Cluster{
	"mainnet-beta": rpc.MainNetBeta,
	"testnet":      rpc.TestNet,
	"devnet":       rpc.DevNet,
	"localnet":     rpc.LocalNet,
}

// RPC is the subset of *rpc.Client the gateway calls.
type RPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, transaction *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetGenesisHash(ctx context.Context) (solana.Hash, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
}

// Dialer opens an RPC client for an endpoint.
type Dialer func(endpoint string) RPC

// DialRPC opens a JSON-RPC client.
func DialRPC(endpoint string) RPC {
	return rpc.New(endpoint)
}

// Gateway talks to one Solana cluster at a time.
type Gateway struct {
	mu      sync.RWMutex
	client  RPC
	network string
	dial    Dialer
	keys    map[solana.PublicKey]solana.PrivateKey
	now     func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDialer replaces the RPC dialer.
func WithDialer(d Dialer) Option {
	return func(g *Gateway) { g.dial = d }
}

// WithClock replaces the clock used to age wallet history.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithKeys adds keys the gateway may sign transfers with.
func WithKeys(keys ...solana.PrivateKey) Option {
	return func(g *Gateway) {
		for _, k := range keys {
			g.keys[k.PublicKey()] = k
		}
	}
}

// NewGateway connects to endpoint, which is expected to serve network.
func NewGateway(endpoint, network string, opts ...Option) *Gateway {
	g := &Gateway{
		network: network,
		dial:    DialRPC,
		keys:    make(map[solana.PublicKey]solana.PrivateKey),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.client = g.dial(endpoint)
	return g
}

func (g *Gateway) current() RPC {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client
}

// Network returns the cluster name the gateway is pointed at.
func (g *Gateway) Network() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.network
}

// CheckNetwork compares the endpoint's genesis hash with the configured
// cluster. Unknown cluster names (localnet, private) are not checked.
func (g *Gateway) CheckNetwork(ctx context.Context) error {
	return checkGenesis(ctx, g.current(), g.Network())
}

// SwitchNetwork points the gateway at a public cluster.
func (g *Gateway) SwitchNetwork(ctx context.Context, network string) error {
	cluster, ok := clusters[network]
	if !ok {
		return fmt.Errorf("%w: unknown cluster %q", ErrNetworkMismatch, network)
	}

	client := g.dial(cluster.RPC)
	if err := checkGenesis(ctx, client, network); err != nil {
		return err
	}

	g.mu.Lock()
	g.client = client
	g.network = network
	g.mu.Unlock()
	return nil
}

func checkGenesis(ctx context.Context, client RPC, network string) error {
	want, ok := genesisHashes[network]
	if !ok {
		return nil
	}

	got, err := client.GetGenesisHash(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if got.String() != want {
		return fmt.Errorf("%w: endpoint genesis %s is not %s", ErrNetworkMismatch, got, network)
	}
	return nil
}

// Accounts lists the addresses the gateway can sign for.
func (g *Gateway) Accounts() []string {
	out := make([]string, 0, len(g.keys))
	for pk := range g.keys {
		out = append(out, pk.String())
	}
	sort.Strings(out)
	return out
}

// Balance returns the finalized balance of address in lamports.
func (g *Gateway) Balance(ctx context.Context, address string) (*big.Int, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	res, err := g.current().GetBalance(ctx, pk, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return new(big.Int).SetUint64(res.Value), nil
}

// NativeBalance returns the balance of address in SOL.
func (g *Gateway) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	lamports, err := g.Balance(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(lamports, -LamportDecimals), nil
}

// SendValueTransfer moves chainUnits lamports from a held key to to and
// returns the transaction signature.
func (g *Gateway) SendValueTransfer(ctx context.Context, from, to string, chainUnits *big.Int) (string, error) {
	fromPK, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return "", fmt.Errorf("invalid sender %q: %w", from, err)
	}
	toPK, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	key, ok := g.keys[fromPK]
	if !ok {
		return "", fmt.Errorf("%w: no key for %s", ErrUserRejected, from)
	}
	if chainUnits == nil || chainUnits.Sign() <= 0 || !chainUnits.IsUint64() {
		return "", fmt.Errorf("%w: amount %v out of range", domain.ErrInvalidAmount, chainUnits)
	}

	client := g.current()
	latest, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			newTransferInstruction(chainUnits.Uint64(), fromPK, toPK),
		},
		latest.Value.Blockhash,
		solana.TransactionPayer(fromPK),
	)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}

	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(fromPK) {
			return &key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}

	sig, err := client.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return sig.String(), nil
}

// VerifyMessage checks an ed25519 signature made by address.
func (g *Gateway) VerifyMessage(address string, message []byte, signature string) error {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("%w: bad address: %w", ErrInvalidSignature, err)
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !sig.Verify(pk, message) {
		return ErrInvalidSignature
	}
	return nil
}
