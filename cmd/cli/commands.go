package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/loanledger/internal/adapter/http/dto"
)

func listingsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Loan requests and offers",
	}

	var kind, owner string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active listings, or every listing of --owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if owner != "" {
				q.Set("owner", owner)
			} else if kind != "" {
				q.Set("kind", kind)
			}

			var listings []*dto.ListingResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/listings?"+q.Encode(), nil, &listings); err != nil {
				return err
			}
			return printListings(cmd.OutOrStdout(), listings)
		},
	}
	listCmd.Flags().StringVar(&kind, "kind", "", "request or offer")
	listCmd.Flags().StringVar(&owner, "owner", "", "owner wallet address")

	var (
		req  dto.CreateListingRequest
		rate string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a loan request or offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rate != "" {
				r, err := decimal.NewFromString(rate)
				if err != nil {
					return fmt.Errorf("invalid --rate %q: %w", rate, err)
				}
				req.InterestRatePercent = &r
			}

			var listing dto.ListingResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/listings", req, &listing); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), listing)
		},
	}
	createCmd.Flags().StringVar(&req.Kind, "kind", "request", "request or offer")
	createCmd.Flags().StringVar(&req.Principal, "principal", "", "principal in major units, e.g. 12.5")
	createCmd.Flags().StringVar(&rate, "rate", "", "annual interest rate percent")
	createCmd.Flags().IntVar(&req.DurationDays, "days", 30, "loan duration in days")
	createCmd.Flags().StringVar(&req.Purpose, "purpose", "", "what the loan is for")
	_ = createCmd.MarkFlagRequired("principal")

	withdrawCmd := &cobra.Command{
		Use:   "withdraw <listing-id>",
		Short: "Withdraw an active listing you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var listing dto.ListingResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/listings/"+url.PathEscape(args[0])+"/withdraw", nil, &listing); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), listing)
		},
	}

	var fundWallet walletFlags
	var fundPay bool
	fundCmd := &cobra.Command{
		Use:   "fund <listing-id>",
		Short: "Take a listing; with --pay, send the transfer and confirm it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()

			var intent dto.IntentResponse
			if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/listings/"+url.PathEscape(args[0])+"/fund", nil, &intent); err != nil {
				return err
			}
			if !fundPay {
				return printJSON(cmd.OutOrStdout(), intent)
			}
			return payAndConfirm(cmd, client, &fundWallet, intent, "confirm-funding")
		},
	}
	fundCmd.Flags().BoolVar(&fundPay, "pay", false, "send the required transfer from a --keypair and confirm it")
	fundWallet.bind(fundCmd, false)

	var pendingWallet walletFlags
	var pendingPay bool
	fundingCmd := &cobra.Command{
		Use:   "funding <listing-id>",
		Short: "Show the transfer a taken listing waits on; with --pay, send and confirm it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()

			var intent dto.IntentResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/listings/"+url.PathEscape(args[0])+"/funding", nil, &intent); err != nil {
				return err
			}
			if !pendingPay {
				return printJSON(cmd.OutOrStdout(), intent)
			}
			return payAndConfirm(cmd, client, &pendingWallet, intent, "confirm-funding")
		},
	}
	fundingCmd.Flags().BoolVar(&pendingPay, "pay", false, "send the required transfer from a --keypair and confirm it")
	pendingWallet.bind(fundingCmd, false)

	cmd.AddCommand(listCmd, createCmd, withdrawCmd, fundCmd, fundingCmd)
	return cmd
}

func loansCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Loan records",
	}

	getCmd := &cobra.Command{
		Use:   "get <loan-id>",
		Short: "Show a loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loan dto.LoanResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/loans/"+url.PathEscape(args[0]), nil, &loan); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), loan)
		},
	}

	var address, role string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List loans of an address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if address != "" {
				q.Set("address", address)
			}
			if role != "" {
				q.Set("role", role)
			}

			var loans []*dto.LoanResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/loans?"+q.Encode(), nil, &loans); err != nil {
				return err
			}
			return printLoans(cmd.OutOrStdout(), loans)
		},
	}
	listCmd.Flags().StringVar(&address, "of", "", "wallet address (defaults to the caller)")
	listCmd.Flags().StringVar(&role, "role", "", "lender or borrower")

	confirmCmd := func(use, short, action string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <loan-id> <transfer-ref>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var loan dto.LoanResponse
				body := dto.ConfirmTransferRequest{TransferRef: args[1]}
				if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/loans/"+url.PathEscape(args[0])+"/"+action, body, &loan); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), loan)
			},
		}
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <loan-id>",
		Short: "Abandon a pending funding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodDelete, "/api/v1/loans/"+url.PathEscape(args[0])+"/funding", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "funding of %s cancelled\n", args[0])
			return nil
		},
	}

	var repayWallet walletFlags
	var repayPay bool
	repayCmd := &cobra.Command{
		Use:   "repay <loan-id>",
		Short: "Start a repayment; with --pay, send the transfer and confirm it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()

			var intent dto.IntentResponse
			if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/loans/"+url.PathEscape(args[0])+"/repay", nil, &intent); err != nil {
				return err
			}
			if !repayPay {
				return printJSON(cmd.OutOrStdout(), intent)
			}
			return payAndConfirm(cmd, client, &repayWallet, intent, "confirm-repayment")
		},
	}
	repayCmd.Flags().BoolVar(&repayPay, "pay", false, "send the required transfer from a --keypair and confirm it")
	repayWallet.bind(repayCmd, false)

	cmd.AddCommand(
		getCmd,
		listCmd,
		confirmCmd("confirm-funding", "Record the funding transfer of a pending loan", "confirm-funding"),
		cancelCmd,
		repayCmd,
		confirmCmd("confirm-repayment", "Record the repayment transfer of an active loan", "confirm-repayment"),
	)
	return cmd
}

func quoteCmd(opts *options) *cobra.Command {
	var (
		req  dto.QuoteRequest
		rate string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Preview interest and total repayment for terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rate != "" {
				r, err := decimal.NewFromString(rate)
				if err != nil {
					return fmt.Errorf("invalid --rate %q: %w", rate, err)
				}
				req.InterestRatePercent = &r
			}

			var quote dto.QuoteResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/quotes/repayment", req, &quote); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quote)
		},
	}
	cmd.Flags().StringVar(&req.Principal, "principal", "", "principal in major units")
	cmd.Flags().StringVar(&rate, "rate", "", "annual interest rate percent")
	cmd.Flags().IntVar(&req.DurationDays, "days", 30, "loan duration in days")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func creditCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "credit <address>",
		Short: "Show the credit profile of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile dto.CreditProfileResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/credit/"+url.PathEscape(args[0]), nil, &profile); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
}

func printListings(w io.Writer, listings []*dto.ListingResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tOWNER\tPRINCIPAL\tRATE\tDAYS\tSTATUS")
	for _, l := range listings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s%%\t%d\t%s\n",
			l.ID, l.Kind, truncate(l.OwnerAddress, 14),
			l.Terms.Principal.Amount, l.Terms.Principal.Currency,
			l.Terms.InterestRatePercent.String(), l.Terms.DurationDays, l.Status)
	}
	return tw.Flush()
}

func printLoans(w io.Writer, loans []*dto.LoanResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLENDER\tBORROWER\tDUE\tAMOUNT\tSTATUS")
	for _, l := range loans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%s\n",
			l.ID, truncate(l.LenderAddress, 14), truncate(l.BorrowerAddress, 14),
			l.DueDate.Format("2006-01-02"),
			l.TotalRepaymentAmount.Amount, l.TotalRepaymentAmount.Currency, l.Status)
	}
	return tw.Flush()
}
