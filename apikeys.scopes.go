package apikeys

import (
	"fmt"
	"regexp"
	"strings"
)

var scopeRegex = regexp.MustCompile(REGEX_SCOPE)

// Scope is a named capability, e.g. "read" or "write".
type Scope string

// Scopes is the validated set of capabilities granted to a key.
// Build it with ParseScopes at the request boundary; everything deeper in the
// pipeline trusts it as-is.
//
// An empty Scopes grants every scope.
type Scopes []Scope

// ParseScopes validates raw scope strings and returns them as Scopes.
// Duplicates are removed, first occurrence wins. A nil or empty input yields
// an empty (full access) set.
func ParseScopes(raw []string) (Scopes, error) {
	if len(raw) > MAX_SCOPES {
		errs := &ValidationErrors{}
		errs.Add(JSON_FIELD_SCOPES, fmt.Sprintf("must contain at most %d entries", MAX_SCOPES))
		return nil, errs
	}

	errs := &ValidationErrors{}
	seen := make(map[string]struct{}, len(raw))
	scopes := make(Scopes, 0, len(raw))
	for i, s := range raw {
		field := fmt.Sprintf("%s[%d]", JSON_FIELD_SCOPES, i)
		switch {
		case s == "":
			errs.Add(field, "must not be empty")
			continue
		case len(s) > MAX_SCOPE_LENGTH:
			errs.Add(field, fmt.Sprintf("must be at most %d characters", MAX_SCOPE_LENGTH))
			continue
		case !scopeRegex.MatchString(s):
			errs.Add(field, "contains invalid characters")
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, Scope(s))
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return scopes, nil
}

// MustParseScopes is ParseScopes for static scope lists. It panics on invalid input.
func MustParseScopes(raw ...string) Scopes {
	scopes, err := ParseScopes(raw)
	if err != nil {
		panic(err)
	}
	return scopes
}

// IsFullAccess reports whether the set is the empty full access sentinel.
func (s Scopes) IsFullAccess() bool {
	return len(s) == 0
}

// Allows reports whether the set grants the required scope.
func (s Scopes) Allows(required Scope) bool {
	if s.IsFullAccess() {
		return true
	}
	for _, granted := range s {
		if granted == required {
			return true
		}
	}
	return false
}

// Strings returns the scopes as plain strings. Never nil.
func (s Scopes) Strings() []string {
	out := make([]string, len(s))
	for i, scope := range s {
		out[i] = string(scope)
	}
	return out
}

// String joins the scopes for logging.
func (s Scopes) String() string {
	return strings.Join(s.Strings(), ",")
}

// scopesFromStrings converts persisted scope strings without validation.
// Stored scopes were validated when the key was created.
func scopesFromStrings(raw []string) Scopes {
	scopes := make(Scopes, len(raw))
	for i, s := range raw {
		scopes[i] = Scope(s)
	}
	return scopes
}
