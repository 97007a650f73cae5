package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/skdltmxn/cv50-go/debugger"
)

var (
	outputFile string
	output     io.Writer

	configFile string
	logLevel   string
	loadBase   uint64
	cfg        debugger.Config

	logger log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cvview",
	Short: "CodeView debug info viewer",
	Long: `cvview is a command-line tool for viewing the CodeView 5.0 (NB09/NB11)
debug information embedded in PE images.

It can display types, symbols, scopes, line numbers and modules, and
resolve addresses to functions and source lines.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := loadConfig(configFile, cmd.Flags()); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var err error
		if logger, err = newLogger(logLevel); err != nil {
			return err
		}

		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = os.Stdout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			f.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	flags.StringVar(&configFile, "config", "", "YAML file with debugger settings; flags take precedence")
	flags.StringVar(&logLevel, "log-level", "warn", "diagnostics level (debug, info, warn, error)")
	flags.Uint64Var(&loadBase, "base", 0, "load address of the image (default: preferred image base)")
	cfg.RegisterFlags(flags)

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(linesCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(recordsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads debugger settings from a YAML file. Flags given on the
// command line keep their values.
func loadConfig(path string, flags *pflag.FlagSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(lvl string) (log.Logger, error) {
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level: %s", lvl)
	}
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return level.NewFilter(l, opt), nil
}
