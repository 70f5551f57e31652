package storage

import "strings"

// FilterMappings applies the shared post-query rules for code_source rows so
// every backend behaves identically:
//
//   - rows whose fact table starts with reservedPrefix are skipped (those are
//     reserved working tables, not real facts);
//   - every surviving row must pass identifier validation. One bad row fails
//     the whole lookup: a partial mapping list is not acceptable to continue
//     with, because downstream checks would silently not run.
//
// reservedPrefix may be empty, in which case no prefix filtering happens.
func FilterMappings(rows []Mapping, reservedPrefix string) ([]Mapping, error) {
	out := make([]Mapping, 0, len(rows))
	for _, m := range rows {
		if reservedPrefix != "" && strings.HasPrefix(m.TableName, reservedPrefix) {
			continue
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
