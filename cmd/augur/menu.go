package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aristath/augur/internal/domain"
)

// actions are the operations the menu can trigger
type actions interface {
	PredictDouble(ctx context.Context) error
	PredictMines(ctx context.Context) error
	ShowStats() error
	Backtest(ctx context.Context, game domain.Game) error
}

func printMenu(w io.Writer) {
	titleColor.Fprintln(w, "\n=== augur ===")
	fmt.Fprintln(w, "1. Predict Double")
	fmt.Fprintln(w, "2. Predict Mines")
	fmt.Fprintln(w, "3. Show stats")
	fmt.Fprintln(w, "4. Backtest Double")
	fmt.Fprintln(w, "5. Backtest Mines")
	fmt.Fprintln(w, "0. Exit")
	fmt.Fprint(w, "> ")
}

// runMenu reads choices until 0, EOF or ctx cancellation.
// Action errors are printed and the loop continues.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, a actions) error {
	scanner := bufio.NewScanner(in)

	for {
		printMenu(out)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		var err error
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			err = a.PredictDouble(ctx)
		case "2":
			err = a.PredictMines(ctx)
		case "3":
			err = a.ShowStats()
		case "4":
			err = a.Backtest(ctx, domain.GameDouble)
		case "5":
			err = a.Backtest(ctx, domain.GameMines)
		case "0", "q", "exit":
			fmt.Fprintln(out, "Bye")
			return nil
		case "":
			continue
		default:
			warnColor.Fprintln(out, "Unknown option")
			continue
		}

		if err != nil {
			lossColor.Fprintf(out, "Error: %v\n", err)
		}
	}
}
