package cmd

import (
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"

	"github.com/oneconcern/gibsync/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var configGen = &cobra.Command{
	Use:   "generate",
	Short: "Generate a config",
	Long: `Generate a config to use for gibsync, with default settings for the kind of space.

The config file is placed in $HOME/.gibsync/gibsync.yaml unless an output is specified.`,
	Run: func(cmd *cobra.Command, args []string) {
		generated := config.Default()
		generated.Space.Kind = gibsyncFlags.config.kind
		if generated.Space.Kind == config.KindBadger {
			generated.Space.Badger.Dir = filepath.Join(generated.Space.LocalFS.BaseDir, "badger")
		}
		// dynamo tables and meta units are left to fill in
		if err := generated.Space.Validate(); err != nil && !needsEdit(generated.Space.Kind) {
			wrapFatalln("invalid space kind", err)
			return
		}

		target := gibsyncFlags.config.output
		if target == "" {
			u, err := user.Current()
			if u == nil || err != nil {
				wrapFatalln("could not get home directory for user", err)
				return
			}
			target = filepath.Join(u.HomeDir, ".gibsync", "gibsync.yaml")
		}

		o, err := yaml.Marshal(generated)
		if err != nil {
			wrapFatalln("serialize config to yaml", err)
			return
		}
		if err = os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			wrapFatalln("create config directory", err)
			return
		}
		if err = ioutil.WriteFile(target, o, 0600); err != nil {
			wrapFatalln("write config file", err)
			return
		}
		infoLogger.Printf("config written to %s", target)
	},
}

func init() {
	addConfigOutputFlag(configGen)
	addConfigKindFlag(configGen)

	configCmd.AddCommand(configGen)
}

func needsEdit(kind string) bool {
	return kind == config.KindDynamo || kind == config.KindMeta
}
