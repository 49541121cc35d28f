package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fahmaliyi/volcred/cli"
	"github.com/fahmaliyi/volcred/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is set at build time
var Version = "dev"

type options struct {
	configPath string
	logLevel   string
	tui        bool
	assumeYes  bool

	cfg   *config.Config
	stdin *bufio.Reader
	tty   *os.File
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	o := &options{stdin: bufio.NewReader(stdin)}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		o.tty = f
	}

	root := &cobra.Command{
		Use:           "volcred",
		Short:         "Change the password, keyfiles or key derivation function of an encrypted volume",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup()
		},
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "path to the configuration file (default ~/.volcred/config.yaml)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().BoolVar(&o.tui, "tui", false, "use the interactive form instead of line prompts")
	root.PersistentFlags().BoolVarP(&o.assumeYes, "yes", "y", false, "accept weak password and low PIM warnings without asking")

	root.AddCommand(
		newCreateCmd(o),
		newChangePasswordCmd(o),
		newChangeKeyfilesCmd(o),
		newRemoveKeyfilesCmd(o),
		newChangeKdfCmd(o),
		newInfoCmd(o),
	)
	return root
}

func (o *options) setup() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	path := o.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	o.cfg = cfg

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	log.Debug().Str("version", Version).Str("config", path).Msg("volcred starting")
	return nil
}

func (o *options) clipboardTTL() time.Duration {
	return time.Duration(o.cfg.ClipboardClearSeconds) * time.Second
}

func (o *options) interactive() bool { return o.tty != nil }

// readSecret reads a password masked on a terminal and as a plain line
// otherwise. Closed input is an error, never an empty password.
func (o *options) readSecret(prompt string) ([]byte, error) {
	if o.interactive() {
		return cli.ReadPasswordMasked(prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := o.stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
