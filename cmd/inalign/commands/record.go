package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Intellirim/inalign/internal/ledger"
)

func newRecordCmd() *cobra.Command {
	var (
		session   string
		kind      string
		name      string
		agentID   string
		agentName string
		used      []string
		generated []string
		attrs     []string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append a single activity record to a session chain",
		Example: `  inalign record --session s1 --type tool_call --name read_file --attr file_path=/etc/hosts
  inalign record --session s1 --type decision --name route --used doc.md --generated plan.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes := make(map[string]string, len(attrs))
			for _, kv := range attrs {
				k, v, ok := splitKV(kv)
				if !ok {
					return fmt.Errorf("invalid --attr %q, want key=value", kv)
				}
				attributes[k] = v
			}

			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := svc.Append(cmd.Context(), ledger.AppendRequest{
				SessionID:         session,
				Type:              ledger.ActivityType(kind),
				Name:              name,
				UsedEntities:      used,
				GeneratedEntities: generated,
				Attributes:        attributes,
				Agent:             ledger.AgentRef{ID: agentID, Name: agentName},
			})
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session ID (required)")
	cmd.Flags().StringVar(&kind, "type", "", "activity type, e.g. tool_call (required)")
	cmd.Flags().StringVar(&name, "name", "", "activity name, e.g. the tool name")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&agentName, "agent-name", "", "agent display name")
	cmd.Flags().StringSliceVar(&used, "used", nil, "entity reference(s) this activity read")
	cmd.Flags().StringSliceVar(&generated, "generated", nil, "entity reference(s) this activity produced")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "key=value attribute (repeatable)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], i > 0
		}
	}
	return "", "", false
}
