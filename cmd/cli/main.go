package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	baseURL string
	timeout time.Duration
	address string
	token   string
}

func (o *options) client() *apiClient {
	return &apiClient{
		baseURL: o.baseURL,
		http:    &http.Client{Timeout: o.timeout},
		address: o.address,
		token:   o.token,
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "loanledger-cli",
		Short:         "Loanledger CLI tool",
		Long:          `A command line interface for the loanledger API and Solana wallets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("LOANLEDGER_URL", "http://localhost:8080"), "Base URL of the loanledger API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.address, "address", os.Getenv("LOANLEDGER_ADDRESS"), "Wallet address to act as (servers without auth)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LOANLEDGER_TOKEN"), "Session token")

	rootCmd.AddCommand(
		listingsCmd(opts),
		loansCmd(opts),
		quoteCmd(opts),
		creditCmd(opts),
		authCmd(opts),
		walletCmd(),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
