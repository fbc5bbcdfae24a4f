package terminal

import (
	"github.com/fieldnodes/field-nodes/internal/command"
	"github.com/fieldnodes/field-nodes/internal/models"
)

// AccountStep tracks progress through the name/password prompts of the
// identify and login stages.
type AccountStep string

const (
	StepName     AccountStep = "name"
	StepPassword AccountStep = "password"
	StepComplete AccountStep = "complete"
)

// Session is the mutable state of one terminal conversation. A Machine never
// keeps any of it; every call receives the session explicitly.
type Session struct {
	Stage    command.Stage
	Identity *models.Identity

	AccountStep AccountStep
	// pendingName is the name typed at StepName, waiting for its password.
	pendingName string

	// Draft is the reflection text collected in the reflect stage.
	Draft string
	// Tending is the node the tend stage attaches evidence to.
	Tending string
	Sources []string
	Notes   []string

	// Form is non-nil while the create-node stage is active.
	Form *NodeForm

	// Listing is the node list shown by the last browse, indexed by number.
	Listing []models.Node
	// Current is the node open in node-detail.
	Current *models.Node
}

// NewSession returns an anonymous session at the origin stage.
func NewSession() *Session {
	return &Session{Stage: command.StageOrigin, AccountStep: StepName}
}

// Handle returns the identity's display handle, "guest" when anonymous.
func (s *Session) Handle() string {
	return s.Identity.Handle()
}

// Guest reports whether the session has no write capability.
func (s *Session) Guest() bool {
	return s.Identity.IsGuest()
}

// SecretInput reports whether the next line is a password and must not be echoed.
func (s *Session) SecretInput() bool {
	return s.secretInput()
}

func (s *Session) secretInput() bool {
	return (s.Stage == command.StageIdentify || s.Stage == command.StageLogin) && s.AccountStep == StepPassword
}

func (s *Session) resetEvidence() {
	s.Sources = nil
	s.Notes = nil
}
