package validation

// IntakeRequest is the payload for POST /v1/intakes.
type IntakeRequest struct {
	Club  string `json:"club" validate:"required"`          // ABC club number
	Email string `json:"email" validate:"required,email"`   // lookup key, authoritative
	Name  string `json:"name,omitempty" validate:"max=200"` // informational only
}

// CreateClientRequest is the payload for POST /v1/mindbody/clients, the
// direct client-creation surface that bypasses the ABC eligibility flow.
type CreateClientRequest struct {
	FirstName string            `json:"first_name" validate:"required"`
	LastName  string            `json:"last_name" validate:"required"`
	Email     string            `json:"email" validate:"required,email"`
	Extras    map[string]string `json:"extras,omitempty"`
}
