// The mapping/batch types need to live in a place both the checker engine and
// backend packages can import without circular deps.
package storage

import (
	"fmt"
	"time"
)

// Mapping is one fact→dimension check loaded from the code_source table.
//
// All five identifiers come from mapping rows at runtime, never from code, so
// they must pass Validate before any SQL is built from them.
type Mapping struct {
	TableName         string
	ColumnName        string
	RefTableName      string
	RefCodeColumnName string
	RefDescColumnName string
}

// Validate checks every identifier in the mapping against the allow-list
// pattern. A mapping with any unusable identifier is rejected as a whole;
// there is no point running half of an anti-join.
func (m Mapping) Validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"table_name", m.TableName},
		{"column_name", m.ColumnName},
		{"ref_table_name", m.RefTableName},
		{"ref_code_column_name", m.RefCodeColumnName},
		{"ref_desc_column_name", m.RefDescColumnName},
	} {
		if !ValidIdent(f.value) {
			return fmt.Errorf("mapping %s.%s: invalid identifier %s=%q", m.TableName, m.ColumnName, f.name, f.value)
		}
	}
	return nil
}

// Batch is the set of undefined codes found for one mapping. Mappings with no
// offending codes produce no Batch at all.
type Batch struct {
	Mapping  Mapping
	BadCodes []string
}

// AuditEntry is one append-only undefined_log row. TableName records the
// reference table the placeholder row was inserted into.
type AuditEntry struct {
	Timestamp   time.Time
	TableName   string
	CodeColumn  string
	DescColumn  string
	Code        string
	Description string
}

// ProcessParam is one run-control row from the process_params table.
// RunFlag is a single-character enable switch; only "Y" triggers a run.
type ProcessParam struct {
	RunFlag string
	Params  string
}

// PlaceholderDescription renders the description stored with placeholder
// dimension rows and their audit entries.
func PlaceholderDescription(code string) string {
	return fmt.Sprintf("undefined code ('%s') from client", code)
}
