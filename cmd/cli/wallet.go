package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/loanledger/internal/adapter/http/dto"
	"github.com/iho/loanledger/internal/adapter/wallet"
)

// walletFlags select a cluster and the keypairs a command may sign with.
type walletFlags struct {
	rpcURL   string
	network  string
	keypairs []string
}

func (f *walletFlags) bind(cmd *cobra.Command, persistent bool) {
	fs := cmd.Flags()
	if persistent {
		fs = cmd.PersistentFlags()
	}
	fs.StringVar(&f.rpcURL, "rpc", "", "Solana RPC endpoint (defaults to the public endpoint of --network)")
	fs.StringVar(&f.network, "network", "devnet", "mainnet-beta, testnet, devnet or localnet")
	fs.StringSliceVar(&f.keypairs, "keypair", nil, "solana-keygen keypair file (repeatable)")
}

func (f *walletFlags) keys() ([]solana.PrivateKey, error) {
	keys := make([]solana.PrivateKey, 0, len(f.keypairs))
	for _, path := range f.keypairs {
		k, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("load keypair %s: %w", path, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// gateway dials --rpc when set, otherwise switches to the public cluster
// named by --network.
func (f *walletFlags) gateway(ctx context.Context) (*wallet.Gateway, error) {
	keys, err := f.keys()
	if err != nil {
		return nil, err
	}

	if f.rpcURL != "" {
		g := wallet.NewGateway(f.rpcURL, f.network, wallet.WithKeys(keys...))
		if err := g.CheckNetwork(ctx); err != nil {
			return nil, err
		}
		return g, nil
	}

	g := wallet.NewGateway(rpc.DevNet.RPC, "devnet", wallet.WithKeys(keys...))
	if f.network != g.Network() {
		if err := g.SwitchNetwork(ctx, f.network); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func walletCmd() *cobra.Command {
	var flags walletFlags
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Solana wallet operations",
	}
	flags.bind(cmd, true)

	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "List addresses of the loaded keypairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := flags.keys()
			if err != nil {
				return err
			}
			g := wallet.NewGateway(rpc.LocalNet.RPC, "localnet", wallet.WithKeys(keys...))
			for _, addr := range g.Accounts() {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			return nil
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the SOL balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := flags.gateway(cmd.Context())
			if err != nil {
				return err
			}
			bal, err := g.NativeBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s SOL (%s)\n", bal.String(), g.Network())
			return nil
		},
	}

	var from string
	sendCmd := &cobra.Command{
		Use:   "send <to> <amount>",
		Short: "Send SOL from a loaded keypair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := lamports(args[1])
			if err != nil {
				return err
			}
			g, err := flags.gateway(cmd.Context())
			if err != nil {
				return err
			}
			sender := from
			if sender == "" {
				accounts := g.Accounts()
				if len(accounts) != 1 {
					return errors.New("--from is required unless exactly one --keypair is loaded")
				}
				sender = accounts[0]
			}

			sig, err := g.SendValueTransfer(cmd.Context(), sender, args[0], units)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	sendCmd.Flags().StringVar(&from, "from", "", "sender address")

	cmd.AddCommand(accountsCmd, balanceCmd, sendCmd)
	return cmd
}

func authCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Wallet sign-in",
	}

	var keypair string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign a challenge with a keypair and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := solana.PrivateKeyFromSolanaKeygenFile(keypair)
			if err != nil {
				return fmt.Errorf("load keypair %s: %w", keypair, err)
			}
			session, err := login(cmd.Context(), opts.client(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	}
	loginCmd.Flags().StringVar(&keypair, "keypair", "", "solana-keygen keypair file")
	_ = loginCmd.MarkFlagRequired("keypair")

	meCmd := &cobra.Command{
		Use:   "me",
		Short: "Show the identity of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var me map[string]any
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/auth/me", nil, &me); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), me)
		},
	}

	cmd.AddCommand(loginCmd, meCmd)
	return cmd
}

func login(ctx context.Context, client *apiClient, key solana.PrivateKey) (*dto.TokenResponse, error) {
	address := key.PublicKey().String()

	var challenge dto.ChallengeResponse
	if err := client.do(ctx, http.MethodGet, "/api/v1/auth/challenge?address="+url.QueryEscape(address), nil, &challenge); err != nil {
		return nil, err
	}

	sig, err := key.Sign([]byte(challenge.Message))
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}

	var session dto.TokenResponse
	req := dto.TokenRequest{Address: address, Signature: sig.String()}
	if err := client.do(ctx, http.MethodPost, "/api/v1/auth/token", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// payAndConfirm sends the transfer an intent asks for and reports it with action.
func payAndConfirm(cmd *cobra.Command, client *apiClient, flags *walletFlags, intent dto.IntentResponse, action string) error {
	ctx := cmd.Context()
	units, ok := new(big.Int).SetString(intent.RequiredTransfer.ChainUnits, 10)
	if !ok {
		return fmt.Errorf("bad chain amount %q", intent.RequiredTransfer.ChainUnits)
	}

	g, err := flags.gateway(ctx)
	if err != nil {
		return err
	}
	sig, err := g.SendValueTransfer(ctx, intent.RequiredTransfer.From, intent.RequiredTransfer.To, units)
	if err != nil {
		return fmt.Errorf("transfer for loan %s: %w", intent.Loan.ID, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "sent %s: %s\n", intent.RequiredTransfer.Amount.Amount, sig)

	var loan dto.LoanResponse
	body := dto.ConfirmTransferRequest{TransferRef: sig}
	if err := client.do(ctx, http.MethodPost, "/api/v1/loans/"+url.PathEscape(intent.Loan.ID)+"/"+action, body, &loan); err != nil {
		return fmt.Errorf("transfer %s sent but not confirmed: %w", sig, err)
	}
	return printJSON(cmd.OutOrStdout(), loan)
}

// lamports converts a SOL amount to chain units.
func lamports(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	units := d.Shift(wallet.LamportDecimals)
	if !units.IsInteger() || units.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q: must be positive with at most %d decimals", amount, wallet.LamportDecimals)
	}
	return units.BigInt(), nil
}
