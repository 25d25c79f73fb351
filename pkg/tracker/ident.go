package tracker

// Identifier helpers.
//
// Project identifiers and archivist names are interpolated into URL paths, so
// they are restricted to [A-Za-z0-9_-]. The tracker applies the same rule on
// its side and answers 400 for anything else.

// IsSafe reports whether every character of s is in [A-Za-z0-9_-].
// The empty string is safe; use ValidateIdentifier to also reject it.
func IsSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isSafeByte(s[i]) {
			return false
		}
	}
	return true
}

// SafeString drops every character of s that IsSafe would reject.
func SafeString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if isSafeByte(s[i]) {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// ValidateIdentifier returns a *ValidationError when value is empty or unsafe.
// field names the offending input in the error ("project_id", "archivist").
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Value: value, Reason: "cannot be empty"}
	}
	if !IsSafe(value) {
		return &ValidationError{Field: field, Value: value, Reason: "must only contain [A-Za-z0-9_-]"}
	}
	return nil
}

func isSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	}
	return false
}
