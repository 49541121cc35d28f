package credential

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err   error
		kind  Kind
		focus Field
	}{
		{ErrUnknownMode, KindConfiguration, FieldNone},
		{ErrRequestConsumed, KindConfiguration, FieldNone},
		{ErrUnportablePassword, KindPortability, FieldNewPassword},
		{ErrPasswordEmpty, KindPasswordPolicy, FieldCurrentPassword},
		{ErrPasswordTooLong, KindPasswordPolicy, FieldCurrentPassword},
		{fmt.Errorf("open header: %w", ErrPasswordIncorrect), KindPasswordPolicy, FieldCurrentPassword},
		{ErrShortPasswordLowPIM, KindPasswordPolicy, FieldCurrentPassword},
		{ErrKdfLegacyIncompatible, KindPasswordPolicy, FieldCurrentPassword},
		{ErrDeclined, KindDeclined, FieldNone},
		{ErrOwnerNotRestored, KindUnderlying, FieldNone},
		{errors.New("disk on fire"), KindUnderlying, FieldNone},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			e := Classify(tt.err)
			if e.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", e.Kind, tt.kind)
			}
			if e.Focus != tt.focus {
				t.Errorf("focus = %v, want %v", e.Focus, tt.focus)
			}
			if !errors.Is(e, tt.err) {
				t.Error("classified error should wrap its cause")
			}
			if e.Error() != tt.err.Error() {
				t.Errorf("message = %q, want %q", e.Error(), tt.err.Error())
			}
		})
	}
}

func TestClassify_KeepsClassifiedErrors(t *testing.T) {
	orig := &Error{Kind: KindDeclined, Focus: FieldNewPIM, Cause: ErrDeclined}
	wrapped := fmt.Errorf("submit: %w", orig)

	if got := Classify(wrapped); got != orig {
		t.Errorf("Classify = %+v, want the classified error", got)
	}
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestKind_Recoverable(t *testing.T) {
	if KindConfiguration.Recoverable() || KindUnderlying.Recoverable() {
		t.Error("configuration and underlying errors are not recoverable by input")
	}
	if !KindPortability.Recoverable() || !KindPasswordPolicy.Recoverable() || !KindDeclined.Recoverable() {
		t.Error("input errors should be recoverable")
	}
}
