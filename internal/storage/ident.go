package storage

import "strings"

// ValidIdent reports whether s is acceptable as a table or column identifier
// coming from a code_source mapping row.
//
// Why this exists:
//   - Mapping rows are data, and identifiers cannot be bound as SQL
//     parameters. The only safe way to use them is to validate against a
//     conservative allow-list before quoting.
//
// Accepted shape:
//   - letters, digits and underscore, not starting with a digit
//   - at most one dot for a schema qualifier ("dw.orders"), where each part
//     follows the same rule
//
// Anything else (spaces, quotes, semicolons, empty parts) is rejected.
func ValidIdent(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if !validIdentPart(p) {
			return false
		}
	}
	return true
}

func validIdentPart(p string) bool {
	if p == "" {
		return false
	}
	for i, r := range p {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
