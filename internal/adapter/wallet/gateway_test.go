package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/loanledger/internal/domain"
)

type fakeRPC struct {
	balance  uint64
	genesis  solana.Hash
	status   *rpc.SignatureStatusesResult
	result   *rpc.GetTransactionResult
	sent     []*solana.Transaction
	err      error
	endpoint string

	// history is newest first, as the node returns it.
	history []*rpc.TransactionSignature
	tokens  *rpc.GetTokenAccountsResult
	pages   int
}

func (f *fakeRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{7}}}, nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.err != nil {
		return solana.Signature{}, f.err
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, search bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{f.status}}, nil
}

func (f *fakeRPC) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRPC) GetGenesisHash(ctx context.Context) (solana.Hash, error) {
	if f.err != nil {
		return solana.Hash{}, f.err
	}
	return f.genesis, nil
}

func (f *fakeRPC) GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pages++

	start := 0
	if opts.Before != (solana.Signature{}) {
		for i, s := range f.history {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}
	end := len(f.history)
	if opts.Limit != nil && start+*opts.Limit < end {
		end = start + *opts.Limit
	}
	return f.history[start:end], nil
}

func (f *fakeRPC) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func gatewayWith(f *fakeRPC, opts ...Option) *Gateway {
	opts = append([]Option{WithDialer(func(endpoint string) RPC {
		f.endpoint = endpoint
		return f
	})}, opts...)
	return NewGateway("http://rpc.test", "localnet", opts...)
}

// settledAt is the block time of every transfer built by transferResult.
var settledAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// transferResult builds the RPC view of a signed payer -> payee transfer.
func transferResult(t *testing.T, payer solana.PrivateKey, payee solana.PublicKey, lamports uint64) (*rpc.GetTransactionResult, solana.Signature) {
	t.Helper()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{newTransferInstruction(lamports, payer.PublicKey(), payee)},
		solana.Hash{9},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	const start = 10_000_000_000
	body := fmt.Sprintf(`{
		"slot": 42,
		"blockTime": %d,
		"meta": {"err": null, "fee": 5000, "preBalances": [%d, 0, 1], "postBalances": [%d, %d, 1]},
		"transaction": [%q, "base64"]
	}`, settledAt.Unix(), start, start-lamports-5000, lamports, base64.StdEncoding.EncodeToString(raw))

	var res rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	return &res, tx.Signatures[0]
}

func TestGateway_VerifyTransfer(t *testing.T) {
	payer := newKey(t)
	payee := newKey(t).PublicKey()
	stranger := newKey(t).PublicKey()

	result, sig := transferResult(t, payer, payee, 500_000_000)
	finalized := &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized}

	tests := []struct {
		name    string
		ref       string
		from      string
		units     int64
		notBefore time.Time
		status    *rpc.SignatureStatusesResult
		rpcErr  error
		wantErr error
	}{
		{name: "exact amount", ref: sig.String(), from: payer.PublicKey().String(), units: 500_000_000, status: finalized},
		{name: "underpaid", ref: sig.String(), from: payer.PublicKey().String(), units: 500_000_001, status: finalized, wantErr: domain.ErrTransferFailed},
		{name: "signed by someone else", ref: sig.String(), from: stranger.String(), units: 1, status: finalized, wantErr: domain.ErrTransferFailed},
		{name: "unknown signature", ref: sig.String(), from: payer.PublicKey().String(), units: 1, status: nil, wantErr: domain.ErrTransferFailed},
		{name: "only processed", ref: sig.String(), from: payer.PublicKey().String(), units: 1,
			status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusProcessed}, wantErr: domain.ErrTransferFailed},
		{name: "failed on chain", ref: sig.String(), from: payer.PublicKey().String(), units: 1,
			status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized, Err: "InstructionError"}, wantErr: domain.ErrTransferFailed},
		{name: "malformed ref", ref: "not-base58!", from: payer.PublicKey().String(), units: 1, status: finalized, wantErr: domain.ErrTransferFailed},
		{name: "rpc down", ref: sig.String(), from: payer.PublicKey().String(), units: 1, rpcErr: errors.New("connection refused"), wantErr: ErrProviderUnavailable},
		{name: "settled after the request", ref: sig.String(), from: payer.PublicKey().String(), units: 1, status: finalized,
			notBefore: settledAt.Add(-time.Minute)},
		{name: "settled within clock skew", ref: sig.String(), from: payer.PublicKey().String(), units: 1, status: finalized,
			notBefore: settledAt.Add(3 * time.Second)},
		{name: "settled before the request", ref: sig.String(), from: payer.PublicKey().String(), units: 1, status: finalized,
			notBefore: settledAt.Add(time.Hour), wantErr: domain.ErrTransferFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRPC{status: tt.status, result: result, err: tt.rpcErr}
			g := gatewayWith(f)

			err := g.VerifyTransfer(context.Background(), tt.ref, domain.RequiredTransfer{
				From:       tt.from,
				To:         payee.String(),
				ChainUnits: big.NewInt(tt.units),
				NotBefore:  tt.notBefore,
			})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGateway_VerifyTransferWithoutBlockTime(t *testing.T) {
	payer := newKey(t)
	payee := newKey(t).PublicKey()

	result, sig := transferResult(t, payer, payee, 1000)
	result.BlockTime = nil
	g := gatewayWith(&fakeRPC{
		status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		result: result,
	})

	expected := domain.RequiredTransfer{From: payer.PublicKey().String(), To: payee.String(), ChainUnits: big.NewInt(1000)}
	assert.NoError(t, g.VerifyTransfer(context.Background(), sig.String(), expected), "no lower bound to enforce")

	expected.NotBefore = settledAt
	assert.ErrorIs(t, g.VerifyTransfer(context.Background(), sig.String(), expected), domain.ErrTransferFailed)
}

func TestGateway_NativeBalance(t *testing.T) {
	g := gatewayWith(&fakeRPC{balance: 1_500_000_000})

	bal, err := g.NativeBalance(context.Background(), newKey(t).PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal.String())

	_, err = g.NativeBalance(context.Background(), "0xnot-solana")
	assert.Error(t, err)
}

func TestGateway_VerifyMessage(t *testing.T) {
	key := newKey(t)
	msg := []byte("loanledger sign-in nonce 42")

	sig, err := key.Sign(msg)
	require.NoError(t, err)

	g := gatewayWith(&fakeRPC{})
	assert.NoError(t, g.VerifyMessage(key.PublicKey().String(), msg, sig.String()))
	assert.ErrorIs(t, g.VerifyMessage(key.PublicKey().String(), []byte("other"), sig.String()), ErrInvalidSignature)
	assert.ErrorIs(t, g.VerifyMessage(newKey(t).PublicKey().String(), msg, sig.String()), ErrInvalidSignature)
	assert.ErrorIs(t, g.VerifyMessage(key.PublicKey().String(), msg, "garbage"), ErrInvalidSignature)
}

func TestGateway_SendValueTransfer(t *testing.T) {
	sender := newKey(t)
	recipient := newKey(t).PublicKey()
	f := &fakeRPC{}
	g := gatewayWith(f, WithKeys(sender))

	assert.Equal(t, []string{sender.PublicKey().String()}, g.Accounts())

	ref, err := g.SendValueTransfer(context.Background(), sender.PublicKey().String(), recipient.String(), big.NewInt(250_000))
	require.NoError(t, err)
	require.Len(t, f.sent, 1)

	tx := f.sent[0]
	assert.Equal(t, tx.Signatures[0].String(), ref)
	assert.NoError(t, tx.VerifySignatures())
	assert.True(t, tx.Message.AccountKeys[0].Equals(sender.PublicKey()))
}

func TestGateway_SendValueTransferRejections(t *testing.T) {
	sender := newKey(t)
	recipient := newKey(t).PublicKey().String()

	g := gatewayWith(&fakeRPC{}, WithKeys(sender))
	ctx := context.Background()

	_, err := g.SendValueTransfer(ctx, newKey(t).PublicKey().String(), recipient, big.NewInt(1))
	assert.ErrorIs(t, err, ErrUserRejected)

	_, err = g.SendValueTransfer(ctx, sender.PublicKey().String(), recipient, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	down := gatewayWith(&fakeRPC{err: errors.New("timeout")}, WithKeys(sender))
	_, err = down.SendValueTransfer(ctx, sender.PublicKey().String(), recipient, big.NewInt(1))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGateway_SwitchNetwork(t *testing.T) {
	devnet := solana.MustHashFromBase58(genesisHashes["devnet"])
	f := &fakeRPC{genesis: devnet}
	g := gatewayWith(f)
	ctx := context.Background()

	require.NoError(t, g.SwitchNetwork(ctx, "devnet"))
	assert.Equal(t, "devnet", g.Network())
	assert.Equal(t, rpc.DevNet.RPC, f.endpoint)

	err := g.SwitchNetwork(ctx, "mainnet-beta")
	assert.ErrorIs(t, err, ErrNetworkMismatch)
	assert.Equal(t, "devnet", g.Network(), "failed switch keeps the current cluster")

	assert.ErrorIs(t, g.SwitchNetwork(ctx, "atlantis"), ErrNetworkMismatch)
}

func TestGateway_CheckNetwork(t *testing.T) {
	f := &fakeRPC{genesis: solana.Hash{1}}
	g := NewGateway("http://rpc.test", "testnet", WithDialer(func(string) RPC { return f }))

	assert.ErrorIs(t, g.CheckNetwork(context.Background()), ErrNetworkMismatch)

	local := NewGateway("http://rpc.test", "localnet", WithDialer(func(string) RPC { return f }))
	assert.NoError(t, local.CheckNetwork(context.Background()))
}

// historyOf returns n signatures, one per hour, newest at newest.
func historyOf(t *testing.T, n int, newest time.Time) []*rpc.TransactionSignature {
	t.Helper()
	out := make([]*rpc.TransactionSignature, n)
	for i := range out {
		var sig solana.Signature
		sig[0], sig[1] = byte(i), byte(i>>8)
		sig[2] = 1
		bt := solana.UnixTimeSeconds(newest.Add(-time.Duration(i) * time.Hour).Unix())
		out[i] = &rpc.TransactionSignature{Signature: sig, BlockTime: &bt}
	}
	return out
}

// tokenAccounts builds a token account listing holding the given mints.
func tokenAccounts(t *testing.T, mints ...solana.PublicKey) *rpc.GetTokenAccountsResult {
	t.Helper()

	type account struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data       [2]string `json:"data"`
			Owner      string    `json:"owner"`
			Lamports   uint64    `json:"lamports"`
			Executable bool      `json:"executable"`
			RentEpoch  uint64    `json:"rentEpoch"`
		} `json:"account"`
	}
	var value []account
	for _, mint := range mints {
		var a account
		a.Pubkey = newKey(t).PublicKey().String()
		a.Account.Data = [2]string{base64.StdEncoding.EncodeToString(mint.Bytes()), "base64"}
		a.Account.Owner = solana.TokenProgramID.String()
		a.Account.Lamports = 2_039_280
		value = append(value, a)
	}

	raw, err := json.Marshal(map[string]any{"context": map[string]any{"slot": 42}, "value": value})
	require.NoError(t, err)

	var res rpc.GetTokenAccountsResult
	require.NoError(t, json.Unmarshal(raw, &res))
	return &res
}

func TestGateway_WalletActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	owner := newKey(t).PublicKey().String()
	usdc, bonk := newKey(t).PublicKey(), newKey(t).PublicKey()

	t.Run("young wallet", func(t *testing.T) {
		f := &fakeRPC{
			history: historyOf(t, 80, now.Add(-24*time.Hour)),
			tokens:  tokenAccounts(t, usdc, bonk, usdc),
		}
		g := gatewayWith(f, WithClock(func() time.Time { return now }))

		activity, err := g.WalletActivity(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, 80, activity.TxCount)
		assert.Equal(t, 2, activity.TokenKinds, "two accounts of one mint count once")
		// Oldest signature is 79h before a tx made a day ago: 103h old.
		assert.Equal(t, 4, activity.AgeDays)
		assert.Equal(t, 1, f.pages)
	})

	t.Run("history spans pages", func(t *testing.T) {
		f := &fakeRPC{
			history: historyOf(t, activityPageSize+10, now),
			tokens:  tokenAccounts(t),
		}
		g := gatewayWith(f, WithClock(func() time.Time { return now }))

		activity, err := g.WalletActivity(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, activityPageSize+10, activity.TxCount)
		assert.Equal(t, 0, activity.TokenKinds)
		assert.Equal(t, (activityPageSize+9)/24, activity.AgeDays)
		assert.Equal(t, 2, f.pages)
	})

	t.Run("history is capped", func(t *testing.T) {
		f := &fakeRPC{history: historyOf(t, activityPageSize*activityPages+5, now)}
		g := gatewayWith(f, WithClock(func() time.Time { return now }))

		activity, err := g.WalletActivity(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, activityPageSize*activityPages, activity.TxCount)
		assert.Equal(t, activityPages, f.pages)
	})

	t.Run("fresh wallet", func(t *testing.T) {
		g := gatewayWith(&fakeRPC{}, WithClock(func() time.Time { return now }))

		activity, err := g.WalletActivity(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, domain.WalletActivity{}, activity)
	})

	t.Run("not a solana address", func(t *testing.T) {
		_, err := gatewayWith(&fakeRPC{}).WalletActivity(context.Background(), "0xb0b")
		assert.Error(t, err)
	})

	t.Run("rpc down", func(t *testing.T) {
		_, err := gatewayWith(&fakeRPC{err: errors.New("timeout")}).WalletActivity(context.Background(), owner)
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})
}
