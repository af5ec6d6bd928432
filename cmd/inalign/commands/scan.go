package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Intellirim/inalign/internal/detect"
	"github.com/Intellirim/inalign/internal/report"
)

func newScanCmd() *cobra.Command {
	var session string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the detector pipeline over a session and print its risk report",
		Example: `  inalign scan --session session-0142
  inalign scan --session session-0142 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := svc.Scan(cmd.Context(), session)
			if err != nil {
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			printReport(rep)
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session ID (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full report as JSON")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func printReport(rep *report.Report) {
	fmt.Println()
	fmt.Printf("  Session %s — %d records\n", rep.SessionID, rep.RecordCount)
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Risk score:  %s\n", colorScore(rep.RiskScore, rep.RiskLevel))
	fmt.Printf("  Chain:       %s\n", colorChain(rep.ChainValid))
	if rep.MerkleRoot != "" {
		fmt.Printf("  Merkle root: %s\n", rep.MerkleRoot[:16]+"...")
	}
	fmt.Printf("  Chains:      %d causal (%d risky)\n", rep.ChainCount, rep.RiskyChainCount)

	if len(rep.Degraded) > 0 {
		color.Yellow("  Incomplete: %d detector(s) did not finish", len(rep.Degraded))
		for _, d := range rep.Degraded {
			fmt.Printf("    %s: %s\n", d.DetectorID, d.Reason)
		}
	}

	if len(rep.Findings) == 0 {
		fmt.Println()
		if rep.Complete() {
			color.Green("  No findings.")
		} else {
			fmt.Println("  No findings (scan incomplete).")
		}
		fmt.Println()
		return
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  LEVEL\tPATTERN\tCONF\tTACTIC\tDESCRIPTION")
	for _, f := range rep.Findings {
		fmt.Fprintf(w, "  %s\t%s\t%.2f\t%s\t%s\n",
			colorLevel(f.RiskLevel), f.PatternID, f.Confidence, f.MitreTactic, f.Description)
	}
	w.Flush()
	fmt.Println()
}

func colorLevel(l detect.RiskLevel) string {
	switch l {
	case detect.RiskCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRITICAL")
	case detect.RiskHigh:
		return color.RedString("HIGH")
	case detect.RiskMedium:
		return color.YellowString("MEDIUM")
	default:
		return color.WhiteString("LOW")
	}
}

func colorScore(score int, level string) string {
	s := fmt.Sprintf("%d/100 (%s)", score, level)
	switch level {
	case "critical":
		return color.New(color.FgRed, color.Bold).Sprint(s)
	case "high":
		return color.RedString(s)
	case "medium":
		return color.YellowString(s)
	default:
		return color.GreenString(s)
	}
}

func colorChain(valid bool) string {
	if valid {
		return color.GreenString("valid")
	}
	return color.New(color.FgRed, color.Bold).Sprint("INVALID")
}
