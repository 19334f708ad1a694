package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stoxy/stoxy/internal/metadata"
)

// app carries the settings shared by every subcommand.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "stoxy-meta",
		Short:         "Export, import and inspect the Stoxy hierarchy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "stoxy.yaml", "Stoxy config file")
	flags.String("engine", "", "metadata engine: sqlite or memory (overrides config)")
	flags.String("db", "", "SQLite database path (overrides config)")
	a.v.BindPFlag("metadata.engine", flags.Lookup("engine"))
	a.v.BindPFlag("metadata.sqlite.path", flags.Lookup("db"))

	root.AddCommand(newExportCmd(a), newImportCmd(a), newTreeCmd(a))
	return root
}

// loadConfig reads the server config file if present. Environment variables
// such as STOXY_METADATA_SQLITE_PATH override it, and flags override both.
func (a *app) loadConfig(path string) error {
	a.v.SetDefault("metadata.engine", metadata.EngineSQLite)
	a.v.SetDefault("metadata.sqlite.path", "./data/hierarchy.db")
	a.v.SetEnvPrefix("stoxy")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	a.v.SetConfigFile(path)
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// openStore opens the configured hierarchy store.
func (a *app) openStore() (metadata.Backend, error) {
	engine := a.v.GetString("metadata.engine")
	path := a.v.GetString("metadata.sqlite.path")
	store, err := metadata.Open(engine, path)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", engine, err)
	}
	if err := store.Ping(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("pinging %s store: %w", engine, err)
	}
	return store, nil
}
