package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gffdb/gffdb/cmd/util"
	"github.com/gffdb/gffdb/pkg/engine"
	"github.com/gffdb/gffdb/pkg/logger"
)

// NewTypesCommand lists the distinct feature types in the datastore.
func NewTypesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List distinct feature types and their counts",
		Long: `The types command lists the distinct feature types in the datastore,
optionally restricted to a landmark-relative window, together with the
number of features of each type.`,
		RunE: runTypes,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()

			util.MustBindPFlag(datastoreEngineFlag, flags.Lookup(datastoreEngineFlag))
			util.MustBindPFlag(datastoreURIFlag, flags.Lookup(datastoreURIFlag))
			util.MustBindPFlag(nameFlag, flags.Lookup(nameFlag))
			util.MustBindPFlag(classFlag, flags.Lookup(classFlag))
			util.MustBindPFlag(startFlag, flags.Lookup(startFlag))
			util.MustBindPFlag(stopFlag, flags.Lookup(stopFlag))
		},
	}

	flags := cmd.Flags()

	flags.String(datastoreEngineFlag, "sqlite", "the datastore engine that will be used for persistence")
	flags.String(datastoreURIFlag, "", "(required) the connection uri of the database to query")
	flags.String(nameFlag, "", "landmark name the window is relative to")
	flags.String(classFlag, "", "landmark class (defaults to reference sequences)")
	flags.Int64(startFlag, 0, "window start, relative to the landmark")
	flags.Int64(stopFlag, 0, "window stop, relative to the landmark")

	// NOTE: if you add a new flag here, add the binding in PreRun

	return cmd
}

func runTypes(cmd *cobra.Command, _ []string) error {
	ds, err := util.OpenDatastore(viper.GetString(datastoreEngineFlag), viper.GetString(datastoreURIFlag), logger.NewNoopLogger())
	if err != nil {
		return err
	}
	defer ds.Close()

	e := engine.New(ds)
	defer e.Close()

	counts, err := e.Types(cmd.Context(), engine.TypesRequest{
		Name:  viper.GetString(nameFlag),
		Class: viper.GetString(classFlag),
		Start: viper.GetInt64(startFlag),
		Stop:  viper.GetInt64(stopFlag),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, tc := range counts {
		fmt.Fprintf(w, "%s\t%d\n", tc.Type, tc.Count)
	}
	return w.Flush()
}
