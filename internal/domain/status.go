package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the last observed liveness of an endpoint.
type Status int

const (
	StatusUnknown Status = iota
	StatusOK
	StatusFail
)

var ErrInvalidStatus = errors.New("invalid status")

// String returns the persisted form of s.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusOK:
		return "OK"
	case StatusFail:
		return "FAIL"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s == StatusUnknown || s == StatusOK || s == StatusFail
}

// ParseStatus maps a persisted value back to a Status. Anything other than
// the three known spellings is rejected.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "UNKNOWN":
		return StatusUnknown, nil
	case "OK":
		return StatusOK, nil
	case "FAIL":
		return StatusFail, nil
	default:
		return StatusUnknown, fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, int(s))
	}
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
