// Copyright © 2018 One Concern

package cmd

import (
	"strings"

	"github.com/oneconcern/gibsync/pkg/config"
	"github.com/oneconcern/gibsync/pkg/dlogger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type flagsT struct {
	root struct {
		configFile string
		logLevel   string
		kind       string
		baseDir    string
	}
	space struct {
		force   bool
		isMeta  bool
		isDna   bool
		latest  bool
		binFile string
		binHash string
		binExt  string
		output  string
	}
	latest struct {
		tjp string
	}
	config struct {
		output string
		kind   string
	}
}

var gibsyncFlags = flagsT{}

func addConfigFileFlag(cmd *cobra.Command) string {
	configFile := "config"
	cmd.PersistentFlags().StringVar(&gibsyncFlags.root.configFile, configFile, "",
		"The configuration file. Defaults to $"+config.EnvConfig+", then gibsync.yaml in ., $HOME/.gibsync or /etc/gibsync")
	return configFile
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := "loglevel"
	cmd.PersistentFlags().StringVar(&gibsyncFlags.root.logLevel, logLevel, dlogger.LogLevelError,
		"The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return logLevel
}

func addSpaceKindFlag(cmd *cobra.Command) string {
	kind := "kind"
	cmd.PersistentFlags().StringVar(&gibsyncFlags.root.kind, kind, config.KindMemory,
		"The kind of space: memory, localfs, badger, dynamo or meta")
	return kind
}

func addBaseDirFlag(cmd *cobra.Command) string {
	baseDir := "base-dir"
	cmd.PersistentFlags().StringVar(&gibsyncFlags.root.baseDir, baseDir, "",
		"The base directory of a localfs space")
	return baseDir
}

func addForceFlag(cmd *cobra.Command) string {
	force := "force"
	cmd.Flags().BoolVar(&gibsyncFlags.space.force, force, false, "Overwrite nodes already held by the space")
	return force
}

func addMetaFlag(cmd *cobra.Command) string {
	isMeta := "meta"
	cmd.Flags().BoolVar(&gibsyncFlags.space.isMeta, isMeta, false, "Address the meta area of the space")
	return isMeta
}

func addDnaFlag(cmd *cobra.Command) string {
	isDna := "dna"
	cmd.Flags().BoolVar(&gibsyncFlags.space.isDna, isDna, false, "Address the dna area of the space")
	return isDna
}

func addLatestFlag(cmd *cobra.Command) string {
	latest := "latest"
	cmd.Flags().BoolVar(&gibsyncFlags.space.latest, latest, false,
		"Resolve the addresses of timeline origins to the latest known version")
	return latest
}

func addBinFileFlag(cmd *cobra.Command) string {
	binFile := "bin"
	cmd.Flags().StringVar(&gibsyncFlags.space.binFile, binFile, "", "A file to store as a binary payload")
	return binFile
}

func addBinHashFlag(cmd *cobra.Command) string {
	binHash := "bin-hash"
	cmd.Flags().StringVar(&gibsyncFlags.space.binHash, binHash, "", "The hash of a binary payload")
	return binHash
}

func addBinExtFlag(cmd *cobra.Command) string {
	binExt := "bin-ext"
	cmd.Flags().StringVar(&gibsyncFlags.space.binExt, binExt, "", "The extension of a binary payload, e.g. jpg")
	return binExt
}

func addOutputFlag(cmd *cobra.Command) string {
	output := "output"
	cmd.Flags().StringVar(&gibsyncFlags.space.output, output, "", "The file receiving a binary payload")
	return output
}

func addTjpFlag(cmd *cobra.Command) string {
	tjp := "tjp"
	cmd.Flags().StringVar(&gibsyncFlags.latest.tjp, tjp, "",
		"The address of the timeline origin. Discovered from the node when not specified")
	return tjp
}

func addConfigOutputFlag(cmd *cobra.Command) string {
	output := "output"
	cmd.Flags().StringVar(&gibsyncFlags.config.output, output, "",
		"The generated file. Defaults to $HOME/.gibsync/gibsync.yaml")
	return output
}

func addConfigKindFlag(cmd *cobra.Command) string {
	kind := "space-kind"
	cmd.Flags().StringVar(&gibsyncFlags.config.kind, kind, config.KindLocalFS, "The kind of space configured")
	return kind
}

// wordSepNormalizeFunc accepts --base_dir as well as --base-dir
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "_", "-", -1))
}
