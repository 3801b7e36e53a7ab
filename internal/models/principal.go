package models

import (
	"fmt"
	"regexp"
)

// Principal identifies a calling party by account name.
type Principal string

// accountPattern accepts dot-separated lowercase segments whose words may be
// joined by '-' or '_'.
var accountPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

const (
	minPrincipalLen = 2
	maxPrincipalLen = 64
)

// Validate reports whether p is a well-formed account name.
func (p Principal) Validate() error {
	if len(p) < minPrincipalLen || len(p) > maxPrincipalLen {
		return fmt.Errorf("principal %q must be %d-%d characters", string(p), minPrincipalLen, maxPrincipalLen)
	}
	if !accountPattern.MatchString(string(p)) {
		return fmt.Errorf("principal %q is not a valid account name", string(p))
	}
	return nil
}

func (p Principal) String() string { return string(p) }
