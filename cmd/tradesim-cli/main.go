package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"tradesim/pkg/tradesim"
)

const version = "0.1.0"

func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "tradesim-server base URL")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tradesim-cli [-server URL] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version           Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  runs [limit]      List recent runs\n")
		fmt.Fprintf(os.Stderr, "  run <id>          Show one run\n")
		fmt.Fprintf(os.Stderr, "  orders <id>       List the orders of a run\n")
		fmt.Fprintf(os.Stderr, "  trades <id>       List the trades of a run\n")
		fmt.Fprintf(os.Stderr, "  positions <id>    List the positions a run ended with\n")
		fmt.Fprintf(os.Stderr, "\n")
	}
	flag.Parse()
	if v := os.Getenv("TRADESIM_SERVER"); v != "" && !isFlagSet("server") {
		*server = v
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c := tradesim.NewClient(*server)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("tradesim-cli %s\n", version)

	case "runs":
		limit := 20
		if len(args) > 1 {
			if limit, err = strconv.Atoi(args[1]); err != nil {
				fatal(fmt.Errorf("invalid limit %q", args[1]))
			}
		}
		var runs []tradesim.Run
		if runs, err = c.ListRuns(ctx, limit); err == nil {
			fmt.Fprintln(tw, "ID\tSTRATEGY\tSYMBOLS\tSTATUS\tRETURN\tMAX DD\tTRADES\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.2f%%\t%.2f%%\t%d\t%s\n",
					r.ID, r.Strategy, len(r.Symbols), r.Status, r.TotalReturn*100, r.MaxDrawdown*100,
					r.TotalTrades, r.StartedAt.Local().Format(time.DateTime))
			}
		}

	case "run":
		var r tradesim.Run
		if r, err = c.GetRun(ctx, requireID(args)); err == nil {
			fmt.Fprintf(tw, "id\t%s\n", r.ID)
			fmt.Fprintf(tw, "strategy\t%s %s\n", r.Strategy, r.Params)
			fmt.Fprintf(tw, "symbols\t%v (%s)\n", r.Symbols, r.Market)
			fmt.Fprintf(tw, "status\t%s %s\n", r.Status, r.Error)
			fmt.Fprintf(tw, "steps\t%d\n", r.Steps)
			fmt.Fprintf(tw, "equity\t%s -> %s %s\n", r.InitialEquity, r.FinalEquity, r.BaseCurrency)
			fmt.Fprintf(tw, "return\t%.2f%%\n", r.TotalReturn*100)
			fmt.Fprintf(tw, "max drawdown\t%.2f%%\n", r.MaxDrawdown*100)
			fmt.Fprintf(tw, "trades\t%d (win rate %.1f%%, profit factor %.2f)\n", r.TotalTrades, r.WinRate*100, r.ProfitFactor)
		}

	case "orders":
		var orders []tradesim.Order
		if orders, err = c.GetOrders(ctx, requireID(args)); err == nil {
			fmt.Fprintln(tw, "ID\tPARENT\tTYPE\tSYMBOL\tSIDE\tQTY\tLIMIT\tSTOP\tSTATUS")
			for _, o := range orders {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					o.OrderID, o.ParentID, o.Type, o.Symbol, o.Side, o.Qty, o.Limit, o.Stop, o.Status)
			}
		}

	case "trades":
		var trades []tradesim.Trade
		if trades, err = c.GetTrades(ctx, requireID(args)); err == nil {
			fmt.Fprintln(tw, "TIME\tORDER\tSYMBOL\tQTY\tPRICE\tFEE\tPNL")
			for _, t := range trades {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					t.Time.Format(time.DateTime), t.OrderID, t.Symbol, t.Qty, t.Price, t.Fee, t.PNL)
			}
		}

	case "positions":
		var positions []tradesim.Position
		if positions, err = c.GetPositions(ctx, requireID(args)); err == nil {
			fmt.Fprintln(tw, "SYMBOL\tSIZE\tAVG PRICE\tMKT PRICE\tCURRENCY")
			for _, p := range positions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Symbol, p.Size, p.AvgPrice, p.MktPrice, p.Currency)
			}
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fatal(err)
	}
}

func requireID(args []string) string {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "%s: missing run id\n", args[0])
		os.Exit(1)
	}
	return args[1]
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
