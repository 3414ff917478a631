package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gffdb/gffdb/cmd/util"
	"github.com/gffdb/gffdb/pkg/engine"
	"github.com/gffdb/gffdb/pkg/gffio"
	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/storage"
)

const (
	nameFlag   = "name"
	classFlag  = "class"
	startFlag  = "start"
	stopFlag   = "stop"
	typesFlag  = "types"
	policyFlag = "policy"
	mergeFlag  = "merge"
	streamFlag = "stream"
)

// NewQueryCommand retrieves features and prints them as GFF2.
func NewQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Retrieve annotation features as GFF2 text",
		Long: `The query command retrieves features from the datastore, optionally
restricted to a landmark-relative window and a set of type patterns, and
prints them to stdout as GFF2. With --merge, composite features (for
example transcripts) are assembled from their parts.`,
		RunE: runQuery,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()

			util.MustBindPFlag(datastoreEngineFlag, flags.Lookup(datastoreEngineFlag))
			util.MustBindPFlag(datastoreURIFlag, flags.Lookup(datastoreURIFlag))
			util.MustBindPFlag(nameFlag, flags.Lookup(nameFlag))
			util.MustBindPFlag(classFlag, flags.Lookup(classFlag))
			util.MustBindPFlag(startFlag, flags.Lookup(startFlag))
			util.MustBindPFlag(stopFlag, flags.Lookup(stopFlag))
			util.MustBindPFlag(typesFlag, flags.Lookup(typesFlag))
			util.MustBindPFlag(policyFlag, flags.Lookup(policyFlag))
			util.MustBindPFlag(mergeFlag, flags.Lookup(mergeFlag))
			util.MustBindPFlag(streamFlag, flags.Lookup(streamFlag))
		},
	}

	flags := cmd.Flags()

	flags.String(datastoreEngineFlag, "sqlite", "the datastore engine that will be used for persistence")
	flags.String(datastoreURIFlag, "", "(required) the connection uri of the database to query")
	flags.String(nameFlag, "", "landmark name the window is relative to")
	flags.String(classFlag, "", "landmark class (defaults to reference sequences)")
	flags.Int64(startFlag, 0, "window start, relative to the landmark")
	flags.Int64(stopFlag, 0, "window stop, relative to the landmark")
	flags.StringSlice(typesFlag, nil, "feature type patterns ('method:source', regex allowed)")
	flags.String(policyFlag, "overlaps", "range policy: 'overlaps', 'contained-in' or 'contains'")
	flags.Bool(mergeFlag, true, "assemble composite features from their parts")
	flags.Bool(streamFlag, false, "stream results instead of materializing them")

	// NOTE: if you add a new flag here, add the binding in PreRun

	return cmd
}

func runQuery(cmd *cobra.Command, _ []string) error {
	ds, err := util.OpenDatastore(viper.GetString(datastoreEngineFlag), viper.GetString(datastoreURIFlag), logger.NewNoopLogger())
	if err != nil {
		return err
	}
	defer ds.Close()

	e := engine.New(ds)
	defer e.Close()

	policy, ok := storage.ParseRangePolicy(viper.GetString(policyFlag))
	if !ok {
		return fmt.Errorf("unknown range policy: %s", viper.GetString(policyFlag))
	}

	req := engine.FeaturesRequest{
		Name:   viper.GetString(nameFlag),
		Class:  viper.GetString(classFlag),
		Start:  viper.GetInt64(startFlag),
		Stop:   viper.GetInt64(stopFlag),
		Policy: policy,
		Types:  viper.GetStringSlice(typesFlag),
		Merge:  viper.GetBool(mergeFlag),
	}

	w := gffio.NewWriter(os.Stdout)
	defer w.Flush()

	ctx := cmd.Context()
	if viper.GetBool(streamFlag) {
		it, err := e.StreamFeatures(ctx, req)
		if err != nil {
			return err
		}
		defer it.Stop()

		for {
			f, err := it.Next(ctx)
			if err != nil {
				if errors.Is(err, storage.ErrIteratorDone) {
					return nil
				}
				return err
			}
			if err := w.WriteFeature(f); err != nil {
				return err
			}
		}
	}

	features, err := e.Features(ctx, req)
	if err != nil {
		return err
	}
	for _, f := range features {
		if err := w.WriteFeature(f); err != nil {
			return err
		}
	}
	return nil
}
