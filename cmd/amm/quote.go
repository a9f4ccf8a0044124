package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"poolEngine/internal/engine"
	"poolEngine/internal/replay"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	amountInStr, _ := cmd.Flags().GetString("amount-in")
	reserveInStr, _ := cmd.Flags().GetString("reserve-in")
	reserveOutStr, _ := cmd.Flags().GetString("reserve-out")

	amountIn, err := replay.ParseAmount(amountInStr)
	if err != nil {
		return fmt.Errorf("amount-in: %w", err)
	}
	reserveIn, err := replay.ParseAmount(reserveInStr)
	if err != nil {
		return fmt.Errorf("reserve-in: %w", err)
	}
	reserveOut, err := replay.ParseAmount(reserveOutStr)
	if err != nil {
		return fmt.Errorf("reserve-out: %w", err)
	}

	amountOut, err := engine.Quote(amountIn, reserveIn, reserveOut)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), amountOut.String())
	return nil
}
