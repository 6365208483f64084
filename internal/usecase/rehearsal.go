package usecase

import (
	"seald/internal/domain"
	"seald/internal/simulate"
)

// NewRehearser builds a simulation rehearser that validates with the
// same rules as the seal path, accepting simulated digests.
func NewRehearser(build domain.BuildInfo) *simulate.Rehearser {
	validator := DeclarationValidator{}
	return &simulate.Rehearser{
		Build: build,
		Check: func(decl domain.Declaration) (bool, []domain.FieldError, []domain.FieldError, domain.Declaration) {
			res := validator.Validate(decl, ValidateOptions{Simulation: true, SimulatedDigest: simulate.IsDigest})
			return res.OK, res.FieldErrors, res.Notices, res.Normalized
		},
	}
}
