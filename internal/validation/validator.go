package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// ABC club identifiers are numeric; catch obviously-wrong values before
	// they turn into a fruitless upstream search.
	v.RegisterStructValidation(intakeStructValidation, IntakeRequest{})

	return v
}

func intakeStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(IntakeRequest)

	for _, r := range req.Club {
		if r < '0' || r > '9' {
			sl.ReportError(req.Club, "club", "Club", "club_numeric", "")
			return
		}
	}
}
