package models

import (
	"fmt"
	"strings"
)

// BendMode selects which half of the model a bend is applied to
type BendMode int

const (
	// DoubleSided bends both halves toward each other around the bend axis
	DoubleSided BendMode = iota

	// SingleSided bends only the half selected by BendSide
	SingleSided
)

// String returns the configuration spelling of the mode
func (m BendMode) String() string {
	switch m {
	case DoubleSided:
		return "double"
	case SingleSided:
		return "single"
	default:
		return fmt.Sprintf("BendMode(%d)", int(m))
	}
}

// ParseBendMode parses "double" or "single" (case-insensitive)
func ParseBendMode(s string) (BendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "double", "double-sided", "":
		return DoubleSided, nil
	case "single", "single-sided":
		return SingleSided, nil
	default:
		return DoubleSided, fmt.Errorf("unknown bend mode %q", s)
	}
}

// BendSide identifies the half of the model that moves in single-sided mode.
// SideA is the half containing the first fiducial, SideB the second.
type BendSide int

const (
	SideA BendSide = iota
	SideB
)

// String returns the configuration spelling of the side
func (s BendSide) String() string {
	switch s {
	case SideA:
		return "a"
	case SideB:
		return "b"
	default:
		return fmt.Sprintf("BendSide(%d)", int(s))
	}
}

// ParseBendSide parses "a" or "b" (case-insensitive)
func ParseBendSide(s string) (BendSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "":
		return SideA, nil
	case "b":
		return SideB, nil
	default:
		return SideA, fmt.Errorf("unknown bend side %q", s)
	}
}

// SessionState is the lifecycle stage of a bend session
type SessionState int

const (
	Uninitialized SessionState = iota
	Initialized
	Previewing
	Finalized
	Cancelled
)

func (s SessionState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Previewing:
		return "previewing"
	case Finalized:
		return "finalized"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Active reports whether the state holds locators and landmarks
func (s SessionState) Active() bool {
	return s == Initialized || s == Previewing
}
