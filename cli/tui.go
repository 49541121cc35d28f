package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fahmaliyi/volcred/credential"
	"github.com/rs/zerolog/log"
)

// ErrCancelled is returned when the operator leaves the form without submitting.
var ErrCancelled = errors.New("cancelled")

type fieldID int

const (
	fieldCurrentPassword fieldID = iota
	fieldCurrentKeyfiles
	fieldCurrentPIM
	fieldCurrentKdf
	fieldNewPassword
	fieldConfirmPassword
	fieldNewPIM
	fieldNewKeyfiles
	fieldNewKdf
)

type formField struct {
	id    fieldID
	label string
	input textinput.Model
	// KDF fields cycle through choices instead of taking text. Index 0 is
	// "autodetect" or "keep current".
	choice  int
	choices []string
}

func (f formField) isChoice() bool { return f.choices != nil }

type model struct {
	req    *credential.ChangeRequest
	caps   credential.Capabilities
	fields []formField
	cursor int
	result credential.Result
	badPIM bool

	random       io.Reader
	clipboardTTL time.Duration

	msg       string
	warn      string
	submitted bool
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("0"))
	buttonStyle   = lipgloss.NewStyle().Padding(0, 2).Bold(true).Background(lipgloss.Color("57")).Foreground(lipgloss.Color("15"))
	disabledStyle = lipgloss.NewStyle().Padding(0, 2).Faint(true).Strikethrough(true)
)

// FormOptions configure the change form.
type FormOptions struct {
	// Random feeds the password generator. Nil disables generation.
	Random io.Reader
	// ClipboardTTL is how long a generated password stays on the clipboard.
	ClipboardTTL time.Duration
}

func newModel(req *credential.ChangeRequest, caps credential.Capabilities, opts FormOptions) model {
	m := model{req: req, caps: caps, random: opts.Random, clipboardTTL: opts.ClipboardTTL}

	m.fields = append(m.fields,
		secretField(fieldCurrentPassword, "Current password", req.Current.Password),
		textField(fieldCurrentKeyfiles, "Current keyfiles", strings.Join(req.Current.Keyfiles, ", ")),
		textField(fieldCurrentPIM, "Current PIM", pimText(req.Current.PIM)),
		kdfField(fieldCurrentKdf, "Current KDF", "autodetect", req.Current.Kdf),
	)
	if caps.NewPassword {
		m.fields = append(m.fields,
			secretField(fieldNewPassword, "New password", req.New.Password),
			secretField(fieldConfirmPassword, "Confirm password", req.New.Confirm),
			textField(fieldNewPIM, "New PIM", pimText(req.New.PIM)),
		)
	}
	if caps.NewKeyfiles {
		m.fields = append(m.fields, textField(fieldNewKeyfiles, "New keyfiles", strings.Join(req.New.Keyfiles, ", ")))
	}
	if caps.KdfChoice {
		m.fields = append(m.fields, kdfField(fieldNewKdf, "New KDF", "keep current", req.New.Kdf))
	}
	m.fields[0].input.Focus()
	m.apply()
	return m
}

func secretField(id fieldID, label string, p credential.Password) formField {
	f := textField(id, label, string(p.Bytes()))
	f.input.EchoMode = textinput.EchoPassword
	f.input.EchoCharacter = '*'
	f.input.CharLimit = credential.MaxPasswordSize
	return f
}

func textField(id fieldID, label, value string) formField {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = label
	ti.SetValue(value)
	return formField{id: id, label: label, input: ti}
}

func kdfField(id fieldID, label, none string, cur *credential.Kdf) formField {
	f := formField{id: id, label: label, choices: []string{none}}
	for i, k := range credential.Kdfs {
		f.choices = append(f.choices, k.Name)
		if cur != nil && cur.Name == k.Name {
			f.choice = i + 1
		}
	}
	return f
}

func pimText(pim int) string {
	if pim == 0 {
		return ""
	}
	return fmt.Sprint(pim)
}

// apply copies the form into the request and re-runs validation.
func (m *model) apply() {
	m.badPIM = false
	for _, f := range m.fields {
		v := f.input.Value()
		switch f.id {
		case fieldCurrentPassword:
			m.req.Current.Password.Zero()
			m.req.Current.Password = credential.NewPassword([]byte(v))
		case fieldCurrentKeyfiles:
			m.req.Current.Keyfiles = parseKeyfiles(v)
		case fieldCurrentPIM:
			m.req.Current.PIM = m.pim(v)
		case fieldCurrentKdf:
			m.req.Current.Kdf = chosenKdf(f)
		case fieldNewPassword:
			m.req.New.Password.Zero()
			m.req.New.Password = credential.NewPassword([]byte(v))
		case fieldConfirmPassword:
			m.req.New.Confirm.Zero()
			m.req.New.Confirm = credential.NewPassword([]byte(v))
		case fieldNewPIM:
			m.req.New.PIM = m.pim(v)
		case fieldNewKeyfiles:
			m.req.New.Keyfiles = parseKeyfiles(v)
		case fieldNewKdf:
			m.req.New.Kdf = chosenKdf(f)
		}
	}
	m.result = credential.Validate(m.req)
}

func (m *model) pim(s string) int {
	n, err := parsePIM(s)
	if err != nil {
		m.badPIM = true
	}
	return n
}

func chosenKdf(f formField) *credential.Kdf {
	if f.choice == 0 {
		return nil
	}
	return credential.Kdfs[f.choice-1]
}

func (m model) allowed() bool { return m.result.Allowed && !m.badPIM }

func (m *model) focus(i int) tea.Cmd {
	m.fields[m.cursor].input.Blur()
	m.cursor = (i + len(m.fields)) % len(m.fields)
	if m.fields[m.cursor].isChoice() {
		return nil
	}
	return m.fields[m.cursor].input.Focus()
}

func (m *model) focusField(f credential.Field) {
	want := map[credential.Field]fieldID{
		credential.FieldCurrentPassword: fieldCurrentPassword,
		credential.FieldNewPassword:     fieldNewPassword,
		credential.FieldNewPIM:          fieldNewPIM,
	}
	id, ok := want[f]
	if !ok {
		return
	}
	for i := range m.fields {
		if m.fields[i].id == id {
			m.focus(i)
			if !m.fields[i].isChoice() {
				m.fields[i].input.SetValue("")
				if id == fieldNewPassword {
					m.clearField(fieldConfirmPassword)
				}
			}
			m.apply()
			return
		}
	}
}

func (m *model) clearField(id fieldID) {
	for i := range m.fields {
		if m.fields[i].id == id {
			m.fields[i].input.SetValue("")
		}
	}
}

func (m *model) generate() {
	if !m.caps.NewPassword || m.random == nil {
		return
	}
	pw, err := GeneratePassword(m.random, DefaultGeneratedLength)
	if err != nil {
		m.warn = "Password generation failed: " + err.Error()
		return
	}
	defer zero(pw)
	for i := range m.fields {
		if m.fields[i].id == fieldNewPassword || m.fields[i].id == fieldConfirmPassword {
			m.fields[i].input.SetValue(string(pw))
		}
	}
	m.apply()

	if err := CopyWithTimeout(string(pw), m.clipboardTTL); err != nil {
		m.warn = "Generated a password but could not copy it: " + err.Error()
		return
	}
	m.msg = "Generated password copied to clipboard"
	if m.clipboardTTL > 0 {
		m.msg += fmt.Sprintf(" (clears in %s)", m.clipboardTTL)
	}
}

// --- Tea Model interface ---
func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.fields[m.cursor].input, cmd = m.fields[m.cursor].input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "down":
		return m, m.focus(m.cursor + 1)
	case "shift+tab", "up":
		return m, m.focus(m.cursor - 1)
	case "ctrl+g":
		m.generate()
		return m, nil
	case "enter":
		if m.allowed() {
			m.submitted = true
			return m, tea.Quit
		}
		return m, m.focus(m.cursor + 1)
	}

	f := &m.fields[m.cursor]
	if f.isChoice() {
		switch key.String() {
		case "left", "h":
			f.choice = (f.choice - 1 + len(f.choices)) % len(f.choices)
		case "right", "l", " ":
			f.choice = (f.choice + 1) % len(f.choices)
		}
		m.apply()
		return m, nil
	}

	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	m.msg = ""
	m.apply()
	return m, cmd
}

func (m model) View() string {
	s := titleStyle.Render(m.caps.Title) + "\n"
	s += helpStyle.Render(m.req.VolumePath) + "\n\n"

	for i, f := range m.fields {
		label := fmt.Sprintf("%-18s", f.label)
		if i == m.cursor {
			label = selectedStyle.Render(label)
		}
		value := f.input.View()
		if f.isChoice() {
			value = fmt.Sprintf("< %s >", f.choices[f.choice])
		}
		s += label + "  " + value + "\n"
	}

	s += "\n"
	if m.badPIM {
		s += warnStyle.Render("PIM must be a non-negative number.") + "\n"
	}
	if m.result.PimChanged {
		s += helpStyle.Render(pimHelpChanged) + "\n"
		if m.req.New.PIM < credential.MinSafePIM && m.req.New.Password.Len() < credential.WarningSizeThreshold {
			s += helpStyle.Render(fmt.Sprintf("A PIM below %d needs a password of at least %d characters.", credential.MinSafePIM, credential.WarningSizeThreshold)) + "\n"
		}
	}
	if m.caps.NewPassword && !m.req.New.PasswordsMatch() {
		s += warnStyle.Render("The new passwords do not match.") + "\n"
	}
	if m.warn != "" {
		s += warnStyle.Render(m.warn) + "\n"
	}
	if m.msg != "" {
		s += msgStyle.Render(m.msg) + "\n"
	}

	if m.allowed() {
		s += "\n" + buttonStyle.Render("OK")
	} else {
		s += "\n" + disabledStyle.Render("OK")
	}

	help := "\nCommands: tab/shift+tab=move, enter=submit, esc=cancel"
	if m.caps.NewPassword && m.random != nil {
		help += ", ctrl+g=generate password"
	}
	if m.caps.KdfChoice {
		help += ", left/right=choose KDF"
	}
	return s + "\n" + helpStyle.Render(help) + "\n"
}

// RunForm shows the change form for req and returns once the operator
// submits an allowed request. warn and focus carry the result of a previous
// attempt.
func RunForm(req *credential.ChangeRequest, opts FormOptions, warn string, focus credential.Field) error {
	caps, err := credential.CapabilitiesOf(req.Mode)
	if err != nil {
		return err
	}
	m := newModel(req, caps, opts)
	m.warn = warn
	m.focusField(focus)

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return fmt.Errorf("run form: %w", err)
	}
	if fm, ok := final.(model); !ok || !fm.submitted {
		return ErrCancelled
	}
	return nil
}

// RunTUI runs the form and submits until the change succeeds, the operator
// cancels or a non recoverable error occurs.
func RunTUI(ctx context.Context, orch *credential.Orchestrator, req *credential.ChangeRequest, opts FormOptions) (credential.Outcome, error) {
	var (
		warn  string
		focus credential.Field
	)
	for {
		if err := RunForm(req, opts, warn, focus); err != nil {
			return credential.OutcomeNone, err
		}
		out, err := orch.Submit(ctx, req)
		if err == nil || out != credential.OutcomeNone {
			return out, err
		}
		e := credential.Classify(err)
		if !e.Kind.Recoverable() {
			return credential.OutcomeNone, e
		}
		log.Debug().Str("kind", e.Kind.String()).Str("focus", e.Focus.String()).Msg("Returning to form")
		warn, focus = "", e.Focus
		if e.Kind != credential.KindDeclined {
			warn = e.Error()
		}
	}
}
