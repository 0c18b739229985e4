// Package names validates cog package names.
//
// A valid name is importable by the bot runtime: it must not start with a
// digit or a dot, must stay within ASCII letters, digits and underscore, and
// must not collide with a Python keyword.
package names

// DefaultReserved is the default denylist: the Python keyword set. It can be
// overridden at runtime through the service configuration.
var DefaultReserved = []string{
	"False", "None", "True", "and", "as", "assert", "async", "await",
	"break", "class", "continue", "def", "del", "elif", "else", "except",
	"finally", "for", "from", "global", "if", "import", "in", "is",
	"lambda", "nonlocal", "not", "or", "pass", "raise", "return", "try",
	"while", "with", "yield",
}

// Validator checks cog names against the charset and reserved-word rules.
type Validator struct {
	reserved map[string]struct{}
}

// New creates a Validator with the given reserved-word denylist. A nil or
// empty list falls back to DefaultReserved.
func New(reserved []string) *Validator {
	if len(reserved) == 0 {
		reserved = DefaultReserved
	}
	set := make(map[string]struct{}, len(reserved))
	for _, word := range reserved {
		set[word] = struct{}{}
	}
	return &Validator{reserved: set}
}

// Valid reports whether name is acceptable as a cog name. The empty string
// is invalid.
func (v *Validator) Valid(name string) bool {
	if name == "" {
		return false
	}

	if name[0] >= '0' && name[0] <= '9' || name[0] == '.' {
		return false
	}

	for _, r := range name {
		if r < '0' {
			return false
		}
		if r > 'Z' && r < 'a' && r != '_' {
			return false
		}
		if r > 'z' {
			return false
		}
	}

	if _, ok := v.reserved[name]; ok {
		return false
	}

	return true
}
