package ledger

import (
	"errors"
	"fmt"
)

const (
	swOK             uint16 = 0x9000
	swUserRejected   uint16 = 0x6985
	swInvalidData    uint16 = 0x6a80
	swInsNotSupport  uint16 = 0x6d00
	swClaNotSupport  uint16 = 0x6e00
	swAppNotOpen     uint16 = 0x6511
	swLocked         uint16 = 0x5515
	swWrongLength    uint16 = 0x6700
	swConditionsFail uint16 = 0x6982
)

var (
	ErrUserRejected = errors.New("request rejected on the device")
	ErrAppNotOpen   = errors.New("ethereum app is not open on the device")
	ErrInvalidData  = errors.New("device rejected the request data")
	ErrLocked       = errors.New("device is locked")
)

// StatusError wraps a non-success status word returned by the device
type StatusError struct {
	Code uint16
}

func (e *StatusError) Error() string {
	switch {
	case errors.Is(e, ErrUserRejected):
		return fmt.Sprintf("%s (0x%04x)", ErrUserRejected, e.Code)
	case errors.Is(e, ErrAppNotOpen):
		return fmt.Sprintf("%s (0x%04x)", ErrAppNotOpen, e.Code)
	case errors.Is(e, ErrInvalidData):
		return fmt.Sprintf("%s (0x%04x)", ErrInvalidData, e.Code)
	case errors.Is(e, ErrLocked):
		return fmt.Sprintf("%s (0x%04x)", ErrLocked, e.Code)
	}
	return fmt.Sprintf("device returned status 0x%04x", e.Code)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == swUserRejected || e.Code == swConditionsFail
	case ErrAppNotOpen:
		return e.Code == swInsNotSupport || e.Code == swClaNotSupport || e.Code == swAppNotOpen
	case ErrInvalidData:
		return e.Code == swInvalidData || e.Code == swWrongLength
	case ErrLocked:
		return e.Code == swLocked
	}
	return false
}
