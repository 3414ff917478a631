package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gffdb/gffdb/cmd/util"
	"github.com/gffdb/gffdb/pkg/gffio"
	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/storage"
)

const (
	batchSizeFlag   = "batch-size"
	concurrencyFlag = "concurrency"
	logFormatFlag   = "log-format"
	logLevelFlag    = "log-level"
)

// NewLoadCommand bulk-loads GFF files into the datastore.
func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file>...",
		Short: "Load GFF annotation files into the datastore",
		Long: `The load command streams one or more GFF2 files (plain or gzipped) into
the datastore. Pass "-" to read from stdin.`,
		RunE: runLoad,
		Args: cobra.MinimumNArgs(1),
		PreRun: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()

			util.MustBindPFlag(datastoreEngineFlag, flags.Lookup(datastoreEngineFlag))
			util.MustBindPFlag(datastoreURIFlag, flags.Lookup(datastoreURIFlag))
			util.MustBindPFlag(batchSizeFlag, flags.Lookup(batchSizeFlag))
			util.MustBindPFlag(concurrencyFlag, flags.Lookup(concurrencyFlag))
			util.MustBindPFlag(logFormatFlag, flags.Lookup(logFormatFlag))
			util.MustBindPFlag(logLevelFlag, flags.Lookup(logLevelFlag))
		},
	}

	flags := cmd.Flags()

	flags.String(datastoreEngineFlag, "sqlite", "the datastore engine that will be used for persistence")
	flags.String(datastoreURIFlag, "", "(required) the connection uri of the database to load into")
	flags.Int(batchSizeFlag, storage.DefaultLoadBatchSize, "number of records per insert batch")
	flags.Int(concurrencyFlag, 4, "number of insert batches in flight")
	flags.String(logFormatFlag, "text", "the log format to output logs in ('text' or 'json')")
	flags.String(logLevelFlag, "info", "the log level to use ('none', 'debug', 'info', 'warn', 'error', 'fatal')")

	// NOTE: if you add a new flag here, add the binding in PreRun

	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	log := logger.MustNewLogger(viper.GetString(logFormatFlag), viper.GetString(logLevelFlag))

	ds, err := util.OpenDatastore(viper.GetString(datastoreEngineFlag), viper.GetString(datastoreURIFlag), log)
	if err != nil {
		return err
	}
	defer ds.Close()

	loader := gffio.NewLoader(ds,
		gffio.WithBatchSize(viper.GetInt(batchSizeFlag)),
		gffio.WithConcurrency(viper.GetInt(concurrencyFlag)),
		gffio.WithLogger(log),
	)

	for _, path := range args {
		var in io.ReadCloser
		if path == "-" {
			in = io.NopCloser(os.Stdin)
		} else {
			in, err = os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
		}

		stats, err := loader.Load(cmd.Context(), in)
		in.Close()
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}

		log.Info("loaded annotation file",
			zap.String("file", path),
			zap.Int64("records", stats.Records),
			zap.Int("refseqs", stats.Refseqs),
			zap.Int64("skipped", stats.Skipped),
		)
	}
	return nil
}
