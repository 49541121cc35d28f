package credential

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is a step of the change state machine.
type State int

const (
	Idle State = iota
	Validating
	PolicyGating
	OwnershipAcquired
	Enriching
	Rekeying
	Completed
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case PolicyGating:
		return "policy-gating"
	case OwnershipAcquired:
		return "ownership-acquired"
	case Enriching:
		return "enriching"
	case Rekeying:
		return "rekeying"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Orchestrator executes approved change requests against its collaborators.
// It handles one request at a time; callers serialise requests per volume.
type Orchestrator struct {
	Rekey      RekeyService
	Entropy    EntropySource
	Privileges PrivilegeOps
	Prompt     ConfirmationPrompt

	// OnTransition, when set, observes every state change.
	OnTransition func(State)

	state State
}

// State returns the state reached by the last Submit.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) enter(l zerolog.Logger, s State) {
	o.state = s
	l.Debug().Str("state", s.String()).Msg("Change request transition")
	if o.OnTransition != nil {
		o.OnTransition(s)
	}
}

// Submit runs req through validation, the policy gate, ownership acquisition,
// entropy enrichment and rekeying. On success it returns the mode's outcome.
// Errors are classified; a declined confirmation yields a KindDeclined error.
//
// Submit returns a non-zero outcome together with an error in one case: the
// header was rewritten but the device owner could not be restored. The error
// then wraps ErrOwnerNotRestored and the state is Completed; the credentials
// did change.
func (o *Orchestrator) Submit(ctx context.Context, req *ChangeRequest) (out Outcome, err error) {
	l := log.With().Str("request_id", req.ID).Str("mode", req.Mode.String()).Str("volume", req.VolumePath).Logger()
	o.state = Idle

	caps, err := CapabilitiesOf(req.Mode)
	if err != nil {
		o.enter(l, Aborted)
		return OutcomeNone, err
	}
	if req.submitted {
		o.enter(l, Aborted)
		return OutcomeNone, Classify(ErrRequestConsumed)
	}

	o.enter(l, Validating)
	if !Validate(req).Allowed {
		o.enter(l, Aborted)
		return OutcomeNone, Classify(ErrNotAllowed)
	}

	o.enter(l, PolicyGating)
	if err := EvaluatePolicy(req.Mode, req.Current, req.New).Resolve(o.Prompt); err != nil {
		o.enter(l, Aborted)
		e := Classify(err)
		if e.Kind == KindDeclined {
			l.Info().Str("focus", e.Focus.String()).Msg("Operator declined policy advisory")
		} else {
			l.Warn().Str("kind", e.Kind.String()).Str("key", e.Key).Msg("Change request rejected by policy")
		}
		return OutcomeNone, e
	}

	next, err := Derive(req)
	if err != nil {
		o.enter(l, Aborted)
		return OutcomeNone, Classify(err)
	}

	guard, err := AcquireOwnership(o.Privileges, req.VolumePath)
	if err != nil {
		o.enter(l, Failed)
		l.Error().Err(err).Msg("Failed to acquire device ownership")
		return OutcomeNone, Classify(err)
	}
	defer func() {
		if rerr := guard.Release(); rerr != nil && err == nil {
			err = Classify(rerr)
			l.Warn().Err(rerr).Str("outcome", out.String()).Msg("Credentials changed but device owner not restored")
		}
	}()
	o.enter(l, OwnershipAcquired)

	o.enter(l, Enriching)
	if o.Entropy != nil {
		o.Entropy.ResetUserEnrichment()
		hash := ""
		if caps.KdfChoice {
			hash = req.New.Kdf.HashName()
		}
		if err := o.Entropy.Enrich(ctx, hash); err != nil {
			l.Warn().Err(err).Msg("Entropy enrichment failed, continuing with the default pool")
		}
	}

	o.enter(l, Rekeying)
	req.submitted = true
	params := RekeyParams{
		VolumePath:         req.VolumePath,
		PreserveTimestamps: req.PreserveTimestamps,
		Current:            req.Current,
		New:                next,
		WipePasses:         req.WipePasses,
	}
	err = runBlocking(ctx, func(ctx context.Context) error {
		if o.Rekey == nil {
			return errors.New("credential: no rekey service configured")
		}
		return o.Rekey.Rekey(ctx, params)
	})
	if err != nil {
		o.enter(l, Failed)
		e := Classify(err)
		l.Error().Err(err).Str("kind", e.Kind.String()).Msg("Volume header rekey failed")
		return OutcomeNone, e
	}

	o.enter(l, Completed)
	l.Info().Str("outcome", caps.Outcome.String()).Msg("Volume credentials changed")
	return caps.Outcome, nil
}
