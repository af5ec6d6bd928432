package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Intellirim/inalign/internal/graph"
)

func newQueryCmd() *cobra.Command {
	var (
		start     string
		depth     int
		relations []string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Walk the knowledge graph outward from a node",
		Example: `  inalign query --start <node-id>
  inalign query --start <node-id> --depth 3 --relation derivedFrom --relation generated`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rels := make([]graph.Relation, 0, len(relations))
			for _, r := range relations {
				rels = append(rels, graph.Relation(r))
			}

			paths, err := svc.Query(cmd.Context(), start, depth, rels)
			if err != nil {
				return err
			}

			if len(paths) == 0 {
				fmt.Println("No reachable nodes.")
				return nil
			}

			for _, p := range paths {
				if p.Node == nil {
					continue
				}
				fmt.Printf("%s [%s] %s\n", p.NodeID, p.Node.Class, p.Node.Label)
				if len(p.Relations) > 0 {
					fmt.Printf("  via %s (depth %d)\n", joinRelations(p.Relations), p.Depth)
				}
			}
			fmt.Printf("\n%d node(s) reachable\n", len(paths))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "starting node ID (required)")
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum traversal depth (0 = default)")
	cmd.Flags().StringArrayVar(&relations, "relation", nil, "restrict traversal to these edge relations (repeatable)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func joinRelations(rels []graph.Relation) string {
	parts := make([]string, len(rels))
	for i, r := range rels {
		parts[i] = string(r)
	}
	return strings.Join(parts, " → ")
}
