package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/Intellirim/inalign/internal/graph"
	"github.com/Intellirim/inalign/internal/ledger"
)

// The three list-driven shell detectors below share one scanning shape:
// walk tool-call commands, match against a fixed idiom list, emit findings.

type commandMatch struct {
	record  *ledger.Record
	command string
	idiom   string
}

// scanCommands returns every record whose shell command contains one of the
// given (lowercased) idioms.
func scanCommands(records []ledger.Record, idioms []string) []commandMatch {
	var matches []commandMatch
	for i := range records {
		rec := &records[i]
		if rec.ActivityType != ledger.ActivityToolCall || !graph.IsShellTool(rec.ActivityName) {
			continue
		}
		cmd, ok := rec.Attributes["command"]
		if !ok {
			continue
		}
		lower := strings.ToLower(cmd)
		for _, idiom := range idioms {
			if strings.Contains(lower, idiom) {
				matches = append(matches, commandMatch{record: rec, command: cmd, idiom: idiom})
			}
		}
	}
	return matches
}

// suspiciousCommandDetector flags dangerous shell idioms outright.
type suspiciousCommandDetector struct{}

func (d *suspiciousCommandDetector) ID() string { return "suspicious_command" }

var dangerousIdioms = []string{
	"rm -rf /", "rm -fr /",
	"| sh", "| bash", "|sh", "|bash", // pipe-to-shell downloads
	"chmod 777", "chmod -r 777",
	"eval ", "eval(",
	"base64 -d", "base64 --decode",
	"mkfifo", ":(){",
	"dd if=/dev/",
	"nc -e", "ncat -e",
}

func (d *suspiciousCommandDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	matches := scanCommands(in.Records, dangerousIdioms)
	if len(matches) == 0 {
		return nil, nil
	}

	var findings []Finding
	for _, m := range matches {
		level := RiskHigh
		if strings.HasPrefix(m.idiom, "rm -") || strings.Contains(m.idiom, "| sh") || strings.Contains(m.idiom, "| bash") {
			level = RiskCritical
		}
		f := newFinding(d.ID(), "Dangerous shell idiom", level, 0.85, TacticExecution)
		f.Description = fmt.Sprintf("shell command matches dangerous idiom %q", m.idiom)
		f.MatchedRecordIDs = []string{m.record.ID}
		f.Evidence = map[string]string{"idiom": m.idiom, "command": truncate(m.command, 200)}
		f.Recommendation = "Block the command class in the agent's tool policy and review what it was trying to do."
		f.MitreTechniques = []string{"T1059"}
		findings = append(findings, f)
	}
	return findings, nil
}

// reconDetector flags system probing: three or more matches against the
// enumeration command list.
type reconDetector struct{}

func (d *reconDetector) ID() string { return "reconnaissance" }

var reconIdioms = []string{
	"whoami", "/etc/passwd", "uname -a", "hostname",
	"ifconfig", "ip addr", "ip route", "netstat", "ss -",
	"nmap", "arp -a", "ps aux", "env | ", "printenv",
	"cat /proc/", "lsof",
}

const reconMinMatches = 3

func (d *reconDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	matches := scanCommands(in.Records, reconIdioms)
	if len(matches) < reconMinMatches {
		return nil, nil
	}

	f := newFinding(d.ID(), "System reconnaissance", RiskMedium, 0.5+0.1*float64(len(matches)), TacticReconnaissance)
	var idioms []string
	for _, m := range matches {
		f.MatchedRecordIDs = append(f.MatchedRecordIDs, m.record.ID)
		idioms = append(idioms, m.idiom)
	}
	f.Description = fmt.Sprintf("%d system-probing commands in one session", len(matches))
	f.Evidence = map[string]string{"matches": strings.Join(idioms, ", ")}
	f.Recommendation = "Enumeration beyond the agent's task scope usually precedes escalation; review the session timeline."
	f.MitreTechniques = []string{"T1082", "T1016", "T1033"}
	return []Finding{f}, nil
}

// persistenceDetector flags access to startup, cron, and service-definition
// paths: critical when written, medium when merely read.
type persistenceDetector struct{}

func (d *persistenceDetector) ID() string { return "persistence_path" }

var persistencePaths = []string{
	"crontab", "/etc/cron", "/var/spool/cron",
	"systemd", ".service", "/etc/init", "rc.local",
	".bashrc", ".zshrc", ".bash_profile", ".profile",
	"authorized_keys", "launchagents", "launchdaemons",
	"/etc/rc", "autostart",
}

func (d *persistenceDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	var findings []Finding
	for i := range in.Records {
		rec := &in.Records[i]
		isWrite := rec.ActivityType == ledger.ActivityFileWrite ||
			(rec.ActivityType == ledger.ActivityToolCall && graph.IsWriteTool(rec.ActivityName))
		isRead := rec.ActivityType == ledger.ActivityFileRead ||
			(rec.ActivityType == ledger.ActivityToolCall && graph.IsReadTool(rec.ActivityName))
		isShell := rec.ActivityType == ledger.ActivityToolCall && graph.IsShellTool(rec.ActivityName)
		if !isWrite && !isRead && !isShell {
			continue
		}

		for _, ref := range graph.ExtractRefs(rec.Attributes) {
			lower := strings.ToLower(ref.Value)
			for _, p := range persistencePaths {
				if !strings.Contains(lower, p) {
					continue
				}
				level := RiskMedium
				desc := "read of persistence path"
				if isWrite || isShell {
					level = RiskCritical
					desc = "write to persistence path"
				}
				f := newFinding(d.ID(), "Persistence mechanism access", level, 0.8, TacticPersistence)
				f.Description = fmt.Sprintf("%s %q", desc, ref.Value)
				f.MatchedRecordIDs = []string{rec.ID}
				f.Evidence = map[string]string{"path": ref.Value, "pattern": p, "tool": rec.ActivityName}
				f.Recommendation = "Diff the touched startup/cron/service file against a known-good copy."
				f.MitreTechniques = []string{"T1053", "T1543", "T1546"}
				findings = append(findings, f)
				break
			}
		}
	}
	return findings, nil
}

// defenseEvasionDetector flags log and history tampering commands.
type defenseEvasionDetector struct{}

func (d *defenseEvasionDetector) ID() string { return "defense_evasion" }

var evasionIdioms = []string{
	"history -c", "unset histfile", "histfile=",
	".bash_history", ".zsh_history",
	"shred ", "truncate -s 0",
	"/var/log", "auditctl -e 0",
	"journalctl --vacuum", "wevtutil cl",
}

func (d *defenseEvasionDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	matches := scanCommands(in.Records, evasionIdioms)
	if len(matches) == 0 {
		return nil, nil
	}

	var findings []Finding
	for _, m := range matches {
		f := newFinding(d.ID(), "Log or history tampering", RiskHigh, 0.8, TacticDefenseEvasion)
		f.Description = fmt.Sprintf("command touches audit/history surface: %q", m.idiom)
		f.MatchedRecordIDs = []string{m.record.ID}
		f.Evidence = map[string]string{"idiom": m.idiom, "command": truncate(m.command, 200)}
		f.Recommendation = "Cross-check host logs against the provenance ledger; the ledger's hash chain is the surviving source of truth."
		f.MitreTechniques = []string{"T1070"}
		findings = append(findings, f)
	}
	return findings, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
