package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/yungbote/medgraph/internal/ingest"
	"github.com/yungbote/medgraph/internal/platform/graphstore"
)

type statusReport struct {
	Backend string                 `yaml:"backend"`
	Nodes   int64                  `yaml:"nodes"`
	Counts  *ingest.Verification   `yaml:"counts"`
	Schema  *graphstore.SchemaInfo `yaml:"schema,omitempty"`
}

func newStatusCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected backend, node counts and schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx, false)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			if !a.Graph.Connected() {
				return errors.New("graph store not connected")
			}
			total, err := a.Graph.CountNodes(ctx)
			if err != nil {
				return err
			}
			rep := statusReport{
				Backend: a.Graph.Backend(),
				Nodes:   total,
				Counts:  a.Importer(ingest.Options{}).Verify(ctx),
			}
			if schema, err := a.Graph.Schema(ctx); err != nil {
				a.Log.Warn("schema lookup failed", "error", err)
			} else {
				rep.Schema = schema
			}
			return writeYAML(cmd, rep)
		},
	}
}
