// Package cli holds the medgraph cobra commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yungbote/medgraph/internal/app"
	"github.com/yungbote/medgraph/internal/config"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// configKeyAnnotation marks flags that override a config key.
const configKeyAnnotation = "medgraph_config_key"

type runtime struct {
	configPath string
	opts       app.Options
	cfg        *config.Config
}

// NewRootCmd builds the command tree. opts is handed to app.New for every
// command that needs collaborators; tests use it to inject fakes.
func NewRootCmd(opts app.Options) *cobra.Command {
	rt := &runtime{opts: opts}
	root := &cobra.Command{
		Use:           "medgraph",
		Short:         "Medical knowledge graph ingestion and question answering",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.load(cmd)
		},
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	pf := root.PersistentFlags()
	pf.StringVarP(&rt.configPath, "config", "c", "", "config file (default ./medgraph.yaml when present)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(pf, "log-level", "log.level")
	pf.StringSlice("backend", nil, "graph backends to try in order (bolt, http, tugraph)")
	bindFlag(pf, "backend", "graph.backends")

	root.AddCommand(
		newIngestCmd(rt),
		newChatCmd(rt),
		newAskCmd(rt),
		newServeCmd(rt),
		newExportCmd(rt),
		newStatusCmd(rt),
		newConfigCmd(rt),
	)
	return root
}

func bindFlag(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// load reads file and env configuration, then applies any annotated flags the
// user actually set.
func (rt *runtime) load(cmd *cobra.Command) error {
	v, err := config.New(rt.configPath)
	if err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) != 1 || bindErr != nil {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("bind --%s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return bindErr
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

// open wires the collaborators. The caller closes the returned app.
func (rt *runtime) open(ctx context.Context, skipGraph bool) (*app.App, error) {
	opts := rt.opts
	opts.SkipGraph = opts.SkipGraph || skipGraph
	return app.New(ctx, rt.cfg, opts)
}
