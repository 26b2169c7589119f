package cli

import (
	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

// Exit codes. Scripts retry on ExitTempFail only.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitInvalid  = 2
	ExitNotFound = 3
	ExitConflict = 4
	ExitTempFail = 75
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindInvalidTransition:
		return ExitInvalid
	case domain.KindNotFound:
		return ExitNotFound
	case domain.KindSlotAlreadyBooked:
		return ExitConflict
	case domain.KindOptimisticConflict, domain.KindLockAcquisition:
		return ExitTempFail
	}
	return ExitFailure
}
