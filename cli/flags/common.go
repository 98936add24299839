package flags

import (
	"fmt"
	"io"
	"os"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// EnvLogLevel is the environment variable holding the default log level.
const EnvLogLevel = "NPIPE_LOG_LEVEL"

// CommonOptions are options common to all npipe commands.
type CommonOptions struct {
	Debug    bool
	LogLevel string
}

// NewCommonOptions returns a new CommonOptions
func NewCommonOptions() *CommonOptions {
	return &CommonOptions{}
}

// InstallFlags adds flags for the common options on the FlagSet
func (commonOpts *CommonOptions) InstallFlags(flags *pflag.FlagSet) {
	defaultLevel := os.Getenv(EnvLogLevel)
	if defaultLevel == "" {
		defaultLevel = "info"
	}
	flags.BoolVarP(&commonOpts.Debug, "debug", "D", false, "Enable debug mode")
	flags.StringVarP(&commonOpts.LogLevel, "log-level", "l", defaultLevel, `Set the logging level ("debug", "info", "warn", "error", "fatal")`)
}

// SetDefaultOptions sets default values for options after flag parsing is
// complete
func (commonOpts *CommonOptions) SetDefaultOptions(*pflag.FlagSet) {
	if commonOpts.Debug {
		commonOpts.LogLevel = "debug"
	}
}

// ConfigureLogging sets up the process-wide logger to write to out at the
// configured level.
func (commonOpts *CommonOptions) ConfigureLogging(out io.Writer) error {
	if err := log.SetLevel(commonOpts.LogLevel); err != nil {
		return fmt.Errorf("unable to parse logging level: %s", commonOpts.LogLevel)
	}
	log.L.Logger.SetOutput(out)
	log.L.Logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: log.RFC3339NanoFixed,
		FullTimestamp:   true,
	})
	return nil
}
