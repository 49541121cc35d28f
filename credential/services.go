package credential

import "context"

// RekeyParams is everything the rekey service needs to rewrite a header.
type RekeyParams struct {
	VolumePath         string
	PreserveTimestamps bool
	Current            Set
	New                Set
	WipePasses         int
}

// RekeyService rewrites a volume header under new credentials. It is the only
// collaborator with a durable effect and must not be interrupted once started.
type RekeyService interface {
	Rekey(ctx context.Context, p RekeyParams) error
}

// EntropySource collects additional randomness before new key material is
// generated. hash names the hash the pool should mix with, or "" for the default.
type EntropySource interface {
	ResetUserEnrichment()
	Enrich(ctx context.Context, hash string) error
}

// OwnerID is a numeric user id. NoOwner marks "nothing to restore".
type OwnerID int

const NoOwner OwnerID = -1

// PrivilegeOps controls device ownership on hosts where an unprivileged user
// needs to own a raw device to write its header.
type PrivilegeOps interface {
	IsElevated() bool
	IsDevice(path string) bool
	CurrentUser() OwnerID
	Owner(path string) (OwnerID, error)
	SetOwner(path string, owner OwnerID) error
}

// ConfirmationPrompt asks the operator a yes/no question. It defaults to no.
type ConfirmationPrompt interface {
	Ask(message string) bool
}

// PromptFunc adapts a function to ConfirmationPrompt.
type PromptFunc func(message string) bool

func (f PromptFunc) Ask(message string) bool { return f(message) }
