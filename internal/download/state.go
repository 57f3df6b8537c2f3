package download

import (
	"errors"
	"fmt"
)

type State int

const (
	Validating State = iota
	FetchingVideo
	FetchingAudio
	Merging
	Delivering
	CleaningUp
	Done
	Failed
)

var (
	ErrInvalidSourceURL = errors.New("invalid source url")
	ErrFetch            = errors.New("fetch failed")
	ErrMerge            = errors.New("merge failed")
	ErrDelivery         = errors.New("delivery failed")
	ErrMetadata         = errors.New("metadata lookup failed")
)

func (s State) String() string {
	switch s {
	case Validating:
		return "Validating"
	case FetchingVideo:
		return "FetchingVideo"
	case FetchingAudio:
		return "FetchingAudio"
	case Merging:
		return "Merging"
	case Delivering:
		return "Delivering"
	case CleaningUp:
		return "CleaningUp"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	}

	return fmt.Sprintf("UNKNOWN[%d]", s)
}

// Terminal returns true for states which a pipeline never leaves.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
