package registry

import "fmt"

// Status is a document's position in the pipeline.
type Status string

const (
	StatusNew       Status = "new"
	StatusOCRing    Status = "ocring"
	StatusOCRed     Status = "ocred"
	StatusConsumed  Status = "consumed"
	StatusOCRFailed Status = "ocr_failed"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusNew, StatusOCRing, StatusOCRed, StatusConsumed, StatusOCRFailed}
}

var transitions = map[Status][]Status{
	StatusNew:       {StatusOCRing, StatusOCRed},
	StatusOCRing:    {StatusOCRed, StatusOCRFailed},
	StatusOCRFailed: {StatusOCRing, StatusOCRed},
	StatusOCRed:     {StatusConsumed},
	StatusConsumed:  nil,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a stored or user-supplied string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// CanTransition reports whether a document may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
