package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/Intellirim/inalign/internal/graph"
	"github.com/Intellirim/inalign/internal/ledger"
)

// CausalChain is the sub-sequence of events between one user instruction and
// the next: everything the agent did in response to a single human input.
type CausalChain struct {
	Index   int
	Records []*ledger.Record // first record is the user input when present
}

// ExtractChains partitions the ordered event stream into causal chains. A
// chain starts at each user-input event; records before the first user input
// form a leading chain of their own.
func ExtractChains(records []ledger.Record) []CausalChain {
	var chains []CausalChain
	var current []*ledger.Record

	flush := func() {
		if len(current) > 0 {
			chains = append(chains, CausalChain{Index: len(chains), Records: current})
			current = nil
		}
	}

	for i := range records {
		rec := &records[i]
		if rec.ActivityType == ledger.ActivityUserInput {
			flush()
		}
		current = append(current, rec)
	}
	flush()
	return chains
}

// chainIndicator is a sequence pattern visible only at chain level.
type chainIndicator struct {
	name  string
	level RiskLevel
}

// causalChainDetector flags indicator combinations inside individual causal
// chains — patterns that single-event detectors cannot see because they live
// in the *sequence*: a read immediately handed to a network tool, or
// back-to-back shell executions.
type causalChainDetector struct{}

func (d *causalChainDetector) ID() string { return "causal_chain" }

func (d *causalChainDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	chains := ExtractChains(in.Records)
	var findings []Finding

	for _, chain := range chains {
		indicators := chainIndicators(chain)
		if len(indicators) == 0 {
			continue
		}

		level := RiskMedium
		var names []string
		for _, ind := range indicators {
			names = append(names, ind.name)
			if ind.level == RiskHigh {
				level = RiskHigh
			}
		}

		f := newFinding(d.ID(), "Risky causal chain", level, 0.5+0.15*float64(len(indicators)), TacticExecution)
		f.Description = fmt.Sprintf("chain %d (%d events) shows %d sequence indicator(s): %s",
			chain.Index, len(chain.Records), len(indicators), strings.Join(names, ", "))
		for _, rec := range chain.Records {
			f.MatchedRecordIDs = append(f.MatchedRecordIDs, rec.ID)
		}
		f.Evidence = map[string]string{
			"chain_index": fmt.Sprintf("%d", chain.Index),
			"chain_len":   fmt.Sprintf("%d", len(chain.Records)),
			"indicators":  strings.Join(names, ", "),
		}
		f.Recommendation = "Replay the chain from its user input; judge whether the sequence served the instruction."
		f.MitreTechniques = []string{"T1059", "T1041"}
		findings = append(findings, f)
	}
	return findings, nil
}

// chainIndicators checks adjacent event pairs inside one chain.
func chainIndicators(chain CausalChain) []chainIndicator {
	var out []chainIndicator
	seen := make(map[string]bool)
	add := func(name string, level RiskLevel) {
		if !seen[name] {
			seen[name] = true
			out = append(out, chainIndicator{name: name, level: level})
		}
	}

	var prev *ledger.Record
	for _, rec := range chain.Records {
		switch rec.ActivityType {
		case ledger.ActivityToolCall, ledger.ActivityFileRead, ledger.ActivityFileWrite:
		default:
			continue
		}
		if prev != nil {
			prevRead := graph.IsReadTool(prev.ActivityName) || prev.ActivityType == ledger.ActivityFileRead
			if prevRead && graph.IsNetworkTool(rec.ActivityName) {
				add("read_then_network", RiskHigh)
			}
			if graph.IsShellTool(prev.ActivityName) && graph.IsShellTool(rec.ActivityName) {
				add("consecutive_shell", RiskMedium)
			}
			if graph.IsWriteTool(prev.ActivityName) && graph.IsNetworkTool(rec.ActivityName) {
				add("write_then_network", RiskMedium)
			}
		}
		prev = rec
	}
	return out
}
