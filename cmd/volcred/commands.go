package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fahmaliyi/volcred/cli"
	"github.com/fahmaliyi/volcred/credential"
	"github.com/fahmaliyi/volcred/entropy"
	"github.com/fahmaliyi/volcred/volume"
	"github.com/spf13/cobra"
)

func newChangePasswordCmd(o *options) *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:   "change-password VOLUME",
		Short: "Change the password, PIM and keyfiles of a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runChange(cmd, args[0], generate)
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a random new password and copy it to the clipboard")
	return cmd
}

func newChangeKeyfilesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "change-keyfiles VOLUME",
		Short: "Add or remove keyfiles, keeping the password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runChange(cmd, args[0], false)
		},
	}
}

func newRemoveKeyfilesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-keyfiles VOLUME",
		Short: "Remove all keyfiles from a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runChange(cmd, args[0], false)
		},
	}
}

func newChangeKdfCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "change-kdf VOLUME",
		Short: "Change the header key derivation function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runChange(cmd, args[0], false)
		},
	}
}

func (o *options) newOrchestrator(pool *entropy.Pool, w io.Writer) *credential.Orchestrator {
	return &credential.Orchestrator{
		Rekey:      volume.NewStore(pool),
		Entropy:    &cli.TerminalEnricher{Pool: pool, In: o.tty, Out: os.Stderr},
		Privileges: volume.HostPrivileges{},
		Prompt:     o.confirmation(w),
	}
}

// confirmation answers yes to every advisory when --yes is set and asks on
// the line prompt otherwise.
func (o *options) confirmation(w io.Writer) credential.ConfirmationPrompt {
	ask := cli.LinePrompt{In: o.stdin, Out: w}
	return credential.PromptFunc(func(message string) bool {
		if o.assumeYes {
			fmt.Fprintf(w, "%s [y/N]: yes (--yes)\n", message)
			return true
		}
		return ask.Ask(message)
	})
}

// runChange runs the change mode named by the subcommand.
func (o *options) runChange(cmd *cobra.Command, path string, generate bool) error {
	mode, err := credential.ParseMode(cmd.Name())
	if err != nil {
		return err
	}
	req, err := credential.NewChangeRequest(mode, path)
	if err != nil {
		return err
	}
	defer req.Discard()
	o.cfg.Apply(req)

	pool := entropy.New()
	orch := o.newOrchestrator(pool, cmd.ErrOrStderr())

	if generate {
		pw, err := cli.GeneratePassword(pool, cli.DefaultGeneratedLength)
		if err != nil {
			return err
		}
		req.New.Password = credential.NewPassword(pw)
		req.New.Confirm = credential.NewPassword(pw)
		err = cli.CopyWithTimeout(string(pw), o.clipboardTTL())
		zeroBytes(pw)
		if err != nil {
			return fmt.Errorf("copy generated password: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Generated a new password and copied it to the clipboard (clears in %s).\n", o.clipboardTTL())
	}

	var out credential.Outcome
	if o.tui {
		out, err = cli.RunTUI(cmd.Context(), orch, req, cli.FormOptions{Random: pool, ClipboardTTL: o.clipboardTTL()})
	} else {
		s := &cli.Session{Orch: orch, In: o.stdin, Out: cmd.ErrOrStderr()}
		if o.interactive() {
			s.ReadSecret = cli.ReadPasswordMasked
		}
		out, err = s.Run(cmd.Context(), req)
	}
	if errors.Is(err, cli.ErrCancelled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
		return nil
	}
	if o.tui && out != credential.OutcomeNone {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out.Key())
	}
	return err
}

type credentialFlags struct {
	keyfiles []string
	pim      int
	kdf      string
	legacy   bool
}

func (f *credentialFlags) add(cmd *cobra.Command, kdfUsage string) {
	cmd.Flags().StringSliceVar(&f.keyfiles, "keyfiles", nil, "keyfiles or keyfile directories, in order")
	cmd.Flags().IntVar(&f.pim, "pim", 0, "personal iterations multiplier (0 selects the default)")
	cmd.Flags().StringVar(&f.kdf, "kdf", "", kdfUsage)
	cmd.Flags().BoolVar(&f.legacy, "legacy", false, "legacy header format")
}

func (f *credentialFlags) set(password []byte) (credential.Set, error) {
	kdf, err := credential.LookupKdf(f.kdf)
	if err != nil {
		return credential.Set{}, err
	}
	if f.pim < 0 {
		return credential.Set{}, fmt.Errorf("PIM must not be negative")
	}
	p := credential.NewPassword(password)
	return credential.Set{
		Password: p,
		Confirm:  p,
		Keyfiles: f.keyfiles,
		Kdf:      kdf,
		PIM:      f.pim,
		Legacy:   f.legacy,
	}, nil
}

func newCreateCmd(o *options) *cobra.Command {
	var (
		flags credentialFlags
		size  int64
	)
	cmd := &cobra.Command{
		Use:   "create VOLUME",
		Short: "Create a new volume container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if flags.kdf == "" {
				flags.kdf = o.cfg.DefaultKdf
			}

			pw, err := o.readSecret("Password: ")
			if err != nil {
				return err
			}
			confirm, err := o.readSecret("Confirm password: ")
			if err != nil {
				zeroBytes(pw)
				return err
			}
			creds, err := flags.set(pw)
			creds.Confirm = credential.NewPassword(confirm)
			zeroBytes(pw)
			zeroBytes(confirm)
			if err != nil {
				return err
			}
			defer creds.Zero()
			if !creds.PasswordsMatch() {
				return errors.New("passwords do not match")
			}
			if err := creds.Password.CheckPortability(); err != nil {
				return err
			}

			if err := volume.NewStore(entropy.New()).Create(args[0], creds, size); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", args[0])
			return nil
		},
	}
	flags.add(cmd, "key derivation function (default from config)")
	cmd.Flags().Int64Var(&size, "size", 1<<20, "payload size in bytes")
	return cmd
}

func newInfoCmd(o *options) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "info VOLUME",
		Short: "Unlock a volume header and describe it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := o.readSecret("Password: ")
			if err != nil {
				return err
			}
			creds, err := flags.set(pw)
			zeroBytes(pw)
			if err != nil {
				return err
			}
			defer creds.Zero()

			info, err := volume.NewStore(entropy.New()).Open(args[0], creds)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Volume:       %s\n", info.Path)
			fmt.Fprintf(w, "KDF:          %s\n", info.Kdf)
			fmt.Fprintf(w, "Legacy:       %v\n", info.Legacy)
			fmt.Fprintf(w, "Size:         %d\n", info.Size)
			fmt.Fprintf(w, "Payload size: %d\n", info.PayloadSize)
			if info.UsedBackup {
				fmt.Fprintln(w, "Primary header damaged, opened with the backup header")
			}
			return nil
		},
	}
	flags.add(cmd, "key derivation function (empty to autodetect)")
	return cmd
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
