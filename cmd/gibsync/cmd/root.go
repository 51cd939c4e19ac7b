// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/oneconcern/gibsync/pkg/config"
	"github.com/oneconcern/gibsync/pkg/dlogger"
	"github.com/oneconcern/gibsync/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gibsync",
	Short: "gibsync stores and synchronizes ibGib nodes",
	Long: `gibsync stores content-addressed ibGib nodes in spaces: in memory, on a local file system,
in an embedded badger database, in a DynamoDB table, or in a composition of those.

It keeps track of the latest version of timelines, so that a timeline may be
retrieved by the address of its origin.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		logger, err = dlogger.GetLogger(settings.LogLevel, dlogger.Console(), dlogger.OutputPaths("stderr"))
		if err != nil {
			wrapFatalln("failed to set log level", err)
			return
		}
		if settings.Metrics {
			if err = metrics.Init(); err != nil {
				wrapFatalln("failed to initialize metrics", err)
				return
			}
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var (
	settings *config.Config
	logger   = zap.NewNop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)

	addConfigFileFlag(rootCmd)
	bindFlag("loglevel", addLogLevelFlag(rootCmd))
	bindFlag("space.kind", addSpaceKindFlag(rootCmd))
	bindFlag("space.localfs.baseDir", addBaseDirFlag(rootCmd))
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	file := gibsyncFlags.root.configFile
	if file == "" {
		file = os.Getenv(config.EnvConfig)
	}
	config.Locate(v, file)

	// If a config file is found, read it in.
	if err := v.ReadInConfig(); err == nil {
		log.Println("Using config file:", v.ConfigFileUsed())
	} else if file != "" {
		wrapFatalln("read config file", err)
		return
	}

	var err error
	settings, err = config.Load(v)
	if err != nil {
		wrapFatalln("load config", err)
	}
}
