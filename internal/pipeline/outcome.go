package pipeline

import "time"

// Status classifies the result of processing one recipient.
type Status string

const (
	// StatusOK marks a successfully delivered message.
	StatusOK Status = "OK"
	// StatusFail marks a recipient whose send failed or whose contact
	// field yielded no email.
	StatusFail Status = "FAIL"
	// StatusValid marks an import-time classification: an email was
	// extracted but no send has been attempted yet.
	StatusValid Status = "VALID"
	// StatusDuplicate marks a resolved email already seen earlier in the
	// same recipient set.
	StatusDuplicate Status = "DUPLICATE"
)

// ErrInvalidEmail is the error text recorded when the contact field
// yields no extractable address.
const ErrInvalidEmail = "invalid email"

// Recipient is one addressable target parsed from a source row.
// Email is the resolved address extracted from Contacts; empty until
// resolution.
type Recipient struct {
	Name      string `json:"name"`
	Contacts  string `json:"contacts"`
	RowNumber int    `json:"row_number"`
	Email     string `json:"email,omitempty"`
}

// Outcome records the result of processing one recipient. Outcomes are
// created once and never mutated; the run's outcome list preserves
// processing order.
type Outcome struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Contacts  string    `json:"contacts"`
	RowNumber int       `json:"row_number"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at,omitzero"`

	// Duration is how long the send attempt took; zero for recipients
	// that never reached the transport.
	Duration time.Duration `json:"duration,omitempty"`
}

// outcomeFor seeds an outcome with the recipient's identity fields.
func outcomeFor(r Recipient, email string) Outcome {
	return Outcome{
		Name:      r.Name,
		Email:     email,
		Contacts:  r.Contacts,
		RowNumber: r.RowNumber,
	}
}
