package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fahmaliyi/volcred/credential"
	"github.com/rs/zerolog/log"
)

const pimHelpChanged = "PIM changed: remember to enter the new PIM every time the volume is mounted."

// Session drives a change request through line prompts, re-asking the
// relevant field whenever a recoverable error comes back.
type Session struct {
	Orch *credential.Orchestrator
	In   *bufio.Reader
	Out  io.Writer
	// ReadSecret reads a password without echo. Nil reads a plain line from In.
	ReadSecret func(prompt string) ([]byte, error)
	// MaxAttempts bounds the number of submissions. Zero means 3.
	MaxAttempts int
}

func (s *Session) secret(prompt string) (credential.Password, error) {
	if s.ReadSecret != nil {
		b, err := s.ReadSecret(prompt)
		if err != nil {
			return credential.Password{}, err
		}
		defer zero(b)
		return credential.NewPassword(b), nil
	}
	line, err := readLine(s.In, s.Out, prompt)
	if err != nil {
		return credential.Password{}, err
	}
	return credential.NewPassword([]byte(line)), nil
}

// Run collects every input the mode enables, then submits. The outcome is
// returned on success; a declined advisory or input error re-asks the field
// the error points at.
func (s *Session) Run(ctx context.Context, req *credential.ChangeRequest) (credential.Outcome, error) {
	caps, err := credential.CapabilitiesOf(req.Mode)
	if err != nil {
		return credential.OutcomeNone, err
	}
	fmt.Fprintf(s.Out, "--- %s ---\n", caps.Title)

	for _, ask := range s.fields(req, caps) {
		if err := ask(); err != nil {
			return credential.OutcomeNone, err
		}
	}

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for i := 0; i < attempts; i++ {
		res := credential.Validate(req)
		if res.PimChanged {
			fmt.Fprintln(s.Out, pimHelpChanged)
		}
		if !res.Allowed {
			fmt.Fprintln(s.Out, describeIncomplete(req))
			if err := s.refill(req, caps); err != nil {
				return credential.OutcomeNone, err
			}
			continue
		}

		out, err := s.Orch.Submit(ctx, req)
		if out != credential.OutcomeNone {
			fmt.Fprintf(s.Out, "%s.\n", capitalize(out.String()))
			if err != nil {
				fmt.Fprintf(s.Out, "Warning: %s\n", err)
			}
			return out, err
		}

		e := credential.Classify(err)
		switch e.Kind {
		case credential.KindDeclined:
		case credential.KindPortability, credential.KindPasswordPolicy:
			fmt.Fprintf(s.Out, "Warning: %s\n", e.Error())
		default:
			return credential.OutcomeNone, e
		}
		log.Debug().Str("kind", e.Kind.String()).Str("focus", e.Focus.String()).Msg("Re-asking input")
		if err := s.refocus(req, caps, e.Focus); err != nil {
			return credential.OutcomeNone, err
		}
	}
	return credential.OutcomeNone, errors.New("too many attempts")
}

func (s *Session) fields(req *credential.ChangeRequest, caps credential.Capabilities) []func() error {
	f := []func() error{
		func() error { return s.askCurrentPassword(req) },
		func() error { return s.askKeyfiles(&req.Current.Keyfiles, "Current keyfiles (comma separated, empty for none): ") },
		func() error { return s.askPIM(&req.Current.PIM, "Current PIM (empty for default): ") },
		func() error { return s.askKdf(&req.Current.Kdf, "Current KDF (empty to autodetect): ") },
	}
	if caps.NewPassword && req.New.Password.IsEmpty() {
		f = append(f, func() error { return s.askNewPassword(req) })
	}
	if caps.NewPassword {
		f = append(f, func() error { return s.askPIM(&req.New.PIM, "New PIM (empty for default): ") })
	}
	if caps.NewKeyfiles {
		f = append(f, func() error { return s.askKeyfiles(&req.New.Keyfiles, "New keyfiles (comma separated, empty for none): ") })
	}
	if caps.KdfChoice {
		f = append(f, func() error { return s.askKdf(&req.New.Kdf, "New KDF (empty to keep current): ") })
	}
	return f
}

// refill asks every field again after an incomplete request.
func (s *Session) refill(req *credential.ChangeRequest, caps credential.Capabilities) error {
	req.New.Password, req.New.Confirm = credential.Password{}, credential.Password{}
	for _, ask := range s.fields(req, caps) {
		if err := ask(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) refocus(req *credential.ChangeRequest, caps credential.Capabilities, f credential.Field) error {
	switch f {
	case credential.FieldNewPassword:
		if caps.NewPassword {
			return s.askNewPassword(req)
		}
	case credential.FieldNewPIM:
		if caps.NewPassword {
			return s.askPIM(&req.New.PIM, "New PIM (empty for default): ")
		}
	case credential.FieldCurrentPassword:
		return s.askCurrentPassword(req)
	}
	return s.refill(req, caps)
}

func (s *Session) askCurrentPassword(req *credential.ChangeRequest) error {
	p, err := s.secret("Current password: ")
	if err != nil {
		return err
	}
	req.Current.Password.Zero()
	req.Current.Password = p
	return nil
}

func (s *Session) askNewPassword(req *credential.ChangeRequest) error {
	p, err := s.secret("New password: ")
	if err != nil {
		return err
	}
	c, err := s.secret("Confirm new password: ")
	if err != nil {
		return err
	}
	req.New.Zero()
	req.New.Password, req.New.Confirm = p, c
	return nil
}

func (s *Session) askKeyfiles(dst *credential.KeyfileList, prompt string) error {
	line, err := readLine(s.In, s.Out, prompt)
	if err != nil {
		return err
	}
	*dst = parseKeyfiles(line)
	return nil
}

func (s *Session) askPIM(dst *int, prompt string) error {
	for {
		line, err := readLine(s.In, s.Out, prompt)
		if err != nil {
			return err
		}
		n, err := parsePIM(line)
		if err != nil {
			fmt.Fprintln(s.Out, err)
			continue
		}
		*dst = n
		return nil
	}
}

func (s *Session) askKdf(dst **credential.Kdf, prompt string) error {
	for {
		line, err := readLine(s.In, s.Out, prompt)
		if err != nil {
			return err
		}
		k, err := credential.LookupKdf(line)
		if err != nil {
			fmt.Fprintf(s.Out, "%v (choose from %s)\n", err, kdfNames())
			continue
		}
		*dst = k
		return nil
	}
}

func describeIncomplete(req *credential.ChangeRequest) string {
	cur := req.Current
	switch {
	case cur.Password.IsEmpty() && cur.Keyfiles.IsEmpty():
		return "The current password or keyfiles are required."
	case req.Mode == credential.RemoveAllKeyfiles:
		return "Removing keyfiles needs both the current password and the current keyfiles."
	case req.Mode == credential.ChangeKeyfiles:
		return "The volume would be left without keyfiles or without any credential."
	case req.Mode == credential.ChangePasswordAndKeyfiles && !req.New.PasswordsMatch():
		return "The new passwords do not match."
	}
	return "A new password or new keyfiles are required."
}

func kdfNames() string {
	names := make([]string, 0, len(credential.Kdfs))
	for _, k := range credential.Kdfs {
		names = append(names, k.Name)
	}
	return strings.Join(names, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
