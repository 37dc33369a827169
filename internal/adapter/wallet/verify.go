package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/iho/loanledger/internal/domain"
)

var maxTransactionVersion uint64

// blockTimeSkew tolerates validator clocks running behind ours.
const blockTimeSkew = 5 * time.Second

func newTransferInstruction(lamports uint64, from, to solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}

// VerifyTransfer checks that transferRef is a confirmed, successful
// transaction signed by the expected payer that credited the payee with
// at least the expected amount.
func (g *Gateway) VerifyTransfer(ctx context.Context, transferRef string, expected domain.RequiredTransfer) error {
	sig, err := solana.SignatureFromBase58(transferRef)
	if err != nil {
		return fmt.Errorf("%w: malformed transaction signature", domain.ErrTransferFailed)
	}
	payer, err := solana.PublicKeyFromBase58(expected.From)
	if err != nil {
		return fmt.Errorf("%w: payer %q is not a Solana address", domain.ErrTransferFailed, expected.From)
	}
	payee, err := solana.PublicKeyFromBase58(expected.To)
	if err != nil {
		return fmt.Errorf("%w: payee %q is not a Solana address", domain.ErrTransferFailed, expected.To)
	}

	client := g.current()

	statuses, err := client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return fmt.Errorf("%w: transaction %s not found", domain.ErrTransferFailed, transferRef)
	}
	status := statuses.Value[0]
	if status.Err != nil {
		return fmt.Errorf("%w: transaction %s failed on chain: %v", domain.ErrTransferFailed, transferRef, status.Err)
	}
	if status.ConfirmationStatus != rpc.ConfirmationStatusConfirmed && status.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
		return fmt.Errorf("%w: transaction %s is %s", domain.ErrTransferFailed, transferRef, status.ConfirmationStatus)
	}

	res, err := client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxTransactionVersion,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return fmt.Errorf("%w: transaction %s has no metadata", domain.ErrTransferFailed, transferRef)
	}
	if res.Meta.Err != nil {
		return fmt.Errorf("%w: transaction %s failed on chain: %v", domain.ErrTransferFailed, transferRef, res.Meta.Err)
	}
	if err := checkBlockTime(res.BlockTime, expected.NotBefore); err != nil {
		return err
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return fmt.Errorf("%w: decode transaction: %w", domain.ErrTransferFailed, err)
	}

	return checkCredit(tx, res.Meta, payer, payee, expected.ChainUnits)
}

// checkBlockTime rejects transactions settled before the intent existed.
func checkBlockTime(blockTime *solana.UnixTimeSeconds, notBefore time.Time) error {
	if notBefore.IsZero() {
		return nil
	}
	if blockTime == nil {
		return fmt.Errorf("%w: transaction has no block time", domain.ErrTransferFailed)
	}
	if settled := blockTime.Time(); settled.Before(notBefore.Add(-blockTimeSkew).Truncate(time.Second)) {
		return fmt.Errorf("%w: transaction settled at %s, before the transfer was requested at %s",
			domain.ErrTransferFailed, settled.UTC().Format(time.RFC3339), notBefore.UTC().Format(time.RFC3339))
	}
	return nil
}

func checkCredit(tx *solana.Transaction, meta *rpc.TransactionMeta, payer, payee solana.PublicKey, want *big.Int) error {
	keys := tx.Message.AccountKeys
	signers := int(tx.Message.Header.NumRequiredSignatures)

	payerIdx, payeeIdx := -1, -1
	for i, k := range keys {
		switch {
		case k.Equals(payer):
			payerIdx = i
		case k.Equals(payee):
			payeeIdx = i
		}
	}

	if payerIdx < 0 || payerIdx >= signers {
		return fmt.Errorf("%w: %s did not sign the transaction", domain.ErrTransferFailed, payer)
	}
	if payeeIdx < 0 || payeeIdx >= len(meta.PreBalances) || payeeIdx >= len(meta.PostBalances) {
		return fmt.Errorf("%w: %s is not credited by the transaction", domain.ErrTransferFailed, payee)
	}

	credited := new(big.Int).Sub(
		new(big.Int).SetUint64(meta.PostBalances[payeeIdx]),
		new(big.Int).SetUint64(meta.PreBalances[payeeIdx]),
	)
	if want != nil && credited.Cmp(want) < 0 {
		return fmt.Errorf("%w: credited %s, expected %s", domain.ErrTransferFailed, credited, want)
	}
	return nil
}
