package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultAPIVersion is the version tag sent when no negotiation has happened
const DefaultAPIVersion = "v6.20220615"

// APIVersion is a parsed "v<major>.<yyyymmdd>" tag
type APIVersion struct {
	Major int
	Date  string
}

// ParseAPIVersion parses a tag such as "v6.20220615". The date part must be
// eight digits.
func ParseAPIVersion(tag string) (APIVersion, error) {
	s := strings.TrimSpace(tag)
	if !strings.HasPrefix(s, "v") {
		return APIVersion{}, fmt.Errorf("api version %q: missing 'v' prefix", tag)
	}
	major, date, ok := strings.Cut(s[1:], ".")
	if !ok {
		return APIVersion{}, fmt.Errorf("api version %q: missing date part", tag)
	}
	n, err := strconv.Atoi(major)
	if err != nil || n < 0 {
		return APIVersion{}, fmt.Errorf("api version %q: invalid major number", tag)
	}
	if len(date) != 8 {
		return APIVersion{}, fmt.Errorf("api version %q: date must be yyyymmdd", tag)
	}
	for _, c := range date {
		if c < '0' || c > '9' {
			return APIVersion{}, fmt.Errorf("api version %q: date must be yyyymmdd", tag)
		}
	}
	return APIVersion{Major: n, Date: date}, nil
}

// String renders the tag in wire form
func (v APIVersion) String() string {
	return fmt.Sprintf("v%d.%s", v.Major, v.Date)
}

// Compare returns -1, 0 or +1 ordering v against other
func (v APIVersion) Compare(other APIVersion) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	}
	// Fixed-width dates order lexically.
	return strings.Compare(v.Date, other.Date)
}

// MinVersion returns the lower of two versions
func MinVersion(a, b APIVersion) APIVersion {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

// VersionInfo is the body of the unauthenticated GET on the endpoint root
type VersionInfo struct {
	Version string `json:"version"`
	Manager string `json:"manager,omitempty"`
}
