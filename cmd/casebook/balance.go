package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/casebook/casebook"
	"github.com/warp/casebook/units"
)

var (
	balanceServiceType string
	balanceAsOf        string
	balanceAll         bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance <profile-id>",
	Short: "Print a profile's unit balance as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func init() {
	f := balanceCmd.Flags()
	f.StringVar(&balanceServiceType, "service-type", "", "Service type to resolve the authorization for (empty matches any)")
	f.StringVar(&balanceAsOf, "as-of", "", "Date to compute the balance on, YYYY-MM-DD (default today)")
	f.BoolVar(&balanceAll, "all", false, "Print one balance per active service type")
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	var asOf time.Time
	if balanceAsOf != "" {
		t, ok := units.Date(balanceAsOf).Parse()
		if !ok {
			return fmt.Errorf("invalid --as-of %q", balanceAsOf)
		}
		asOf = t
	}

	ctx := cmd.Context()
	docs, closeStore, err := openStore(ctx)
	if err != nil {
		log.Error().Err(err).Msg("store unavailable")
		os.Exit(exitStore)
	}
	defer closeStore()
	svc := newService(docs)

	var out any
	if balanceAll {
		out, err = svc.Summary(ctx, args[0], asOf)
	} else {
		out, err = svc.Balance(ctx, args[0], casebook.BalanceQuery{
			ServiceType: balanceServiceType,
			AsOf:        asOf,
		})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
