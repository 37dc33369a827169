package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/iho/loanledger/internal/domain"
)

// Signature history is read newest first, at most activityPages pages deep.
// Older wallets are scored on what those pages show.
const (
	activityPageSize = 1000
	activityPages    = 5
)

// WalletActivity reads how long address has been active, how many
// transactions it signed and how many token mints it holds.
func (g *Gateway) WalletActivity(ctx context.Context, address string) (domain.WalletActivity, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return domain.WalletActivity{}, fmt.Errorf("invalid address %q: %w", address, err)
	}

	client := g.current()

	count, oldest, err := signatureHistory(ctx, client, owner)
	if err != nil {
		return domain.WalletActivity{}, err
	}
	mints, err := tokenMints(ctx, client, owner)
	if err != nil {
		return domain.WalletActivity{}, err
	}

	activity := domain.WalletActivity{TxCount: count, TokenKinds: mints}
	if oldest != nil {
		if age := g.now().Sub(oldest.Time()); age > 0 {
			activity.AgeDays = int(age / (24 * time.Hour))
		}
	}
	return activity, nil
}

func signatureHistory(ctx context.Context, client RPC, owner solana.PublicKey) (int, *solana.UnixTimeSeconds, error) {
	limit := activityPageSize
	opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit, Commitment: rpc.CommitmentFinalized}

	var (
		count  int
		oldest *solana.UnixTimeSeconds
	)
	for page := 0; page < activityPages; page++ {
		sigs, err := client.GetSignaturesForAddressWithOpts(ctx, owner, opts)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		count += len(sigs)
		for _, s := range sigs {
			if s.BlockTime != nil && (oldest == nil || *s.BlockTime < *oldest) {
				oldest = s.BlockTime
			}
		}
		if len(sigs) < limit {
			break
		}
		opts.Before = sigs[len(sigs)-1].Signature
	}
	return count, oldest, nil
}

// tokenMints counts distinct mints across the owner's SPL token accounts.
// Only the mint, the first field of the account layout, is fetched.
func tokenMints(ctx context.Context, client RPC, owner solana.PublicKey) (int, error) {
	offset, length := uint64(0), uint64(solana.PublicKeyLength)
	res, err := client.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentFinalized,
			Encoding:   solana.EncodingBase64,
			DataSlice:  &rpc.DataSlice{Offset: &offset, Length: &length},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if res == nil {
		return 0, nil
	}

	mints := make(map[solana.PublicKey]struct{})
	for _, acc := range res.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		data := acc.Account.Data.GetBinary()
		if len(data) < solana.PublicKeyLength {
			continue
		}
		mints[solana.PublicKeyFromBytes(data[:solana.PublicKeyLength])] = struct{}{}
	}
	return len(mints), nil
}
