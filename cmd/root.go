// Package cmd provides the plantctl command-line interface.
//
// Configuration is layered, highest priority first:
//
//  1. Command-line flags (--concurrency, --remote-host, ...)
//  2. PLANTCTL_* environment variables, plus PLANTUML_JAR, PLANTUML_HOST and
//     PLANTUML_CACHE_DIR
//  3. The config file given by --config or PLANTCTL_CONFIG_FILE, else
//     .plantctl.yml in the working directory
//  4. Built-in defaults
package cmd

import (
	"context"
	"io"
	"os"
	"runtime"

	"github.com/conneroisu/plantctl/internal/config"
	"github.com/conneroisu/plantctl/internal/download"
	"github.com/conneroisu/plantctl/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries what every subcommand needs once flags and config are loaded.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  logging.Logger
	// logOut overrides the log destination; nil means stderr.
	logOut io.Writer
	// downloadOpts are passed to every downloader.
	downloadOpts []download.Option
}

// Execute runs the command line and returns the first error.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the full command tree around a fresh viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{v: viper.New(), logger: logging.NewNop()})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "plantctl",
		Short: "Render PlantUML diagrams with a local jar or a PlantUML server",
		Long: `plantctl renders PlantUML sources to images and text, either by running
plantuml.jar locally or through a PlantUML server.

Sources are processed concurrently and results are always written in the
order the sources were given.

Quick Start:
  plantctl check                   Show which renderers are usable
  plantctl render a.puml b.puml    Render to a.png and b.png
  plantctl text flow.puml          Print an ASCII rendering
  plantctl url -t svg flow.puml    Print server URLs
  plantctl download                Fetch plantuml.jar into the cache`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	root.SetFlagErrorFunc(flagErrorFunc)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is .plantctl.yml, can also use PLANTCTL_CONFIG_FILE env var)")
	pf.StringP("log-level", "l", "warn", "log level (debug, info, warn, error)")
	pf.StringP("java", "j", "", "java executable (default: java on $PATH)")
	pf.StringP("plantuml", "p", "", "plantuml jar file (env PLANTUML_JAR)")
	pf.StringP("remote-host", "r", "", "PlantUML server URL (env PLANTUML_HOST)")
	pf.BoolP("use-local", "L", false, "only use the local jar")
	pf.BoolP("use-remote", "R", false, "only use the PlantUML server")
	pf.IntP("concurrency", "n", runtime.NumCPU(), "number of sources processed at once")
	pf.String("policy", "fail-fast", "failure policy (fail-fast, collect-all)")
	pf.String("timeout", "0s", "overall time limit, 0 for none")
	pf.String("encoding", "", "source text encoding (default: detect)")
	root.MarkFlagsMutuallyExclusive("use-local", "use-remote")

	AddFlagValidation(pf, "concurrency", ValidateConcurrency)
	AddFlagValidation(pf, "policy", ValidatePolicy)
	AddFlagValidation(pf, "timeout", ValidateTimeout)

	for key, flag := range map[string]string{
		config.KeyLogLevel:    "log-level",
		config.KeyJava:        "java",
		config.KeyJar:         "plantuml",
		config.KeyRemoteHost:  "remote-host",
		config.KeyUseLocal:    "use-local",
		config.KeyUseRemote:   "use-remote",
		config.KeyConcurrency: "concurrency",
		config.KeyPolicy:      "policy",
		config.KeyTimeout:     "timeout",
		config.KeyEncoding:    "encoding",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newRenderCommand(a),
		newTextCommand(a),
		newURLCommand(a),
		newDecodeCommand(a),
		newCheckCommand(a),
		newDownloadCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)

	return root
}

// load reads the config file, environment and flags into a.cfg and sets up
// logging.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfgFile := a.cfgFile
	if cfgFile == "" {
		cfgFile = os.Getenv(config.EnvPrefix + "_CONFIG_FILE")
	}

	config.SetDefaults(a.v)
	config.BindEnv(a.v)
	if err := config.ReadFile(a.v, cfgFile); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.LoggerConfig()
	if a.logOut != nil {
		lc.Output = a.logOut
	}
	a.logger = logging.NewLogger(lc)

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug(cmd.Context(), "Using config file", "path", used)
	}
	return nil
}

// context returns the command context bounded by the configured timeout.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d := a.cfg.TimeoutDuration(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
