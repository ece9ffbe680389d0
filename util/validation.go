package util

import (
	"regexp"
)

// Pre-compiled regex for uid validation
var uidValidCharsRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const maxUIDLength = 64

// IsValidUID validates a local user identifier. A uid names a directory
// under {basedir}/user/ and the actor path {base}/{uid}, so only
// alphanumerics and underscore are allowed.
//
// Returns (true, "") if valid, or (false, "error message") if invalid.
func IsValidUID(uid string) (bool, string) {
	if len(uid) == 0 {
		return false, "uid must be at least 1 character"
	}

	if len(uid) > maxUIDLength {
		return false, "uid must be at most 64 characters"
	}

	if !uidValidCharsRegex.MatchString(uid) {
		return false, "uid contains invalid characters. Only A-Z, a-z, 0-9 and _ are allowed"
	}

	return true, ""
}
