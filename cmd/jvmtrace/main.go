package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daimatz/jvmtrace/pkg/trace"
	"github.com/daimatz/jvmtrace/pkg/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jvmtrace [flags] <Class.class | ClassName> [-- program args]",
		Short: "Run a single JVM class and record an execution trace",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], args[1:])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.String("config", "", "config file (default $HOME/.jvmtrace.yaml)")
	flags.StringP("classpath", "c", ".", "directory searched for classes named on the command line")
	flags.StringP("entry", "e", "main", "static method to run")
	flags.StringP("format", "f", "", "trace format: json, pretty or cbor (default pretty on a terminal, json otherwise)")
	flags.StringP("output", "o", "", "write the trace to a file instead of stdout")
	flags.String("log-level", "warn", "log level: trace, debug, info, warn, error")
	flags.Int("max-depth", vm.DefaultMaxDepth, "maximum call depth")
	flags.Bool("legacy-branches", false, "evaluate ifge and ifle with inverted conditions")
	flags.Bool("no-color", false, "disable colored output")
	return cmd
}

// initConfig binds flags, JVMTRACE_* environment variables and an optional
// config file into viper.
func initConfig(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	viper.SetEnvPrefix("jvmtrace")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".jvmtrace")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || viper.GetString("config") != "" {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	if viper.GetBool("no-color") {
		color.NoColor = true
	}
	return nil
}

func run(stdout, stderr io.Writer, target string, programArgs []string) error {
	logger, err := newLogger(stderr, viper.GetString("log-level"))
	if err != nil {
		return err
	}
	format, err := outputFormat(viper.GetString("format"), viper.GetString("output"))
	if err != nil {
		return err
	}

	class, err := loadTarget(target, viper.GetString("classpath"))
	if err != nil {
		return err
	}
	logger.Info().Str("class", class.Name).Int("methods", len(class.Methods)).Msg("loaded")

	rec := trace.NewRecorder()
	var tracer trace.Writer = rec
	if logger.GetLevel() <= zerolog.DebugLevel {
		tracer = trace.Multi(rec, trace.NewLogWriter(logger.Level(zerolog.DebugLevel)))
	}

	// Program output shares stdout only when the trace goes to a file.
	console := stderr
	if viper.GetString("output") != "" {
		console = stdout
	}

	machine := vm.NewVM(class, tracer)
	machine.Logger = logger
	machine.Stdout = console
	machine.Stderr = stderr
	machine.EntryPoint = viper.GetString("entry")
	machine.MaxDepth = viper.GetInt("max-depth")
	machine.LegacyBranches = viper.GetBool("legacy-branches")
	if color.NoColor {
		machine.ConsoleColor = nil
	}

	runErr := machine.Run(programArgs...)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("execution aborted")
	}
	logger.Info().
		Str("run_id", rec.Document().RunID).
		Int("events", len(rec.Entries())).
		Msg("trace recorded")

	// Events emitted before a fault are kept.
	if err := writeTrace(stdout, rec.Document(), format); err != nil {
		return err
	}
	return runErr
}

// loadTarget loads a .class file by path or a class by name from the
// class path.
func loadTarget(target, classpath string) (*vm.Class, error) {
	if strings.HasSuffix(target, ".class") {
		if _, err := os.Stat(target); err == nil {
			return vm.LoadFile(target)
		}
	}
	return vm.NewClassPath(classpath).Load(target)
}

func outputFormat(name, output string) (trace.Format, error) {
	if name != "" {
		return trace.ParseFormat(name)
	}
	if output == "" && isTerminal(os.Stdout) {
		return trace.FormatPretty, nil
	}
	return trace.FormatJSON, nil
}

func writeTrace(stdout io.Writer, doc *trace.Document, format trace.Format) error {
	path := viper.GetString("output")
	if path == "" {
		return trace.Encode(stdout, doc, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := trace.Encode(f, doc, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
