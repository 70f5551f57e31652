package storage

import (
	"strings"
	"testing"
)

func validMapping() Mapping {
	return Mapping{
		TableName:         "orders",
		ColumnName:        "status",
		RefTableName:      "status_dim",
		RefCodeColumnName: "code",
		RefDescColumnName: "descript",
	}
}

func TestMappingValidate(t *testing.T) {
	t.Parallel()

	if err := validMapping().Validate(); err != nil {
		t.Fatalf("valid mapping rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Mapping)
		field  string
	}{
		{"bad table", func(m *Mapping) { m.TableName = "orders; drop" }, "table_name"},
		{"bad column", func(m *Mapping) { m.ColumnName = "st atus" }, "column_name"},
		{"bad ref table", func(m *Mapping) { m.RefTableName = "" }, "ref_table_name"},
		{"bad ref code col", func(m *Mapping) { m.RefCodeColumnName = "1code" }, "ref_code_column_name"},
		{"bad ref desc col", func(m *Mapping) { m.RefDescColumnName = `d"esc` }, "ref_desc_column_name"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := validMapping()
			tc.mutate(&m)
			err := m.Validate()
			if err == nil {
				t.Fatal("want validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Fatalf("error %q does not name field %s", err, tc.field)
			}
		})
	}
}

func TestPlaceholderDescription(t *testing.T) {
	t.Parallel()

	got := PlaceholderDescription("Z")
	want := "undefined code ('Z') from client"
	if got != want {
		t.Fatalf("PlaceholderDescription = %q, want %q", got, want)
	}
}

func TestFilterMappings(t *testing.T) {
	t.Parallel()

	t.Run("skips reserved prefix", func(t *testing.T) {
		t.Parallel()

		staging := validMapping()
		staging.TableName = "T_orders_load"

		out, err := FilterMappings([]Mapping{validMapping(), staging}, "T_")
		if err != nil {
			t.Fatalf("FilterMappings: %v", err)
		}
		if len(out) != 1 || out[0].TableName != "orders" {
			t.Fatalf("out = %+v, want only the real fact table", out)
		}
	})

	t.Run("empty prefix keeps everything", func(t *testing.T) {
		t.Parallel()

		staging := validMapping()
		staging.TableName = "T_orders_load"

		out, err := FilterMappings([]Mapping{validMapping(), staging}, "")
		if err != nil {
			t.Fatalf("FilterMappings: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("out = %+v, want both rows", out)
		}
	})

	t.Run("one bad row fails the lookup", func(t *testing.T) {
		t.Parallel()

		bad := validMapping()
		bad.ColumnName = "status; drop"

		if _, err := FilterMappings([]Mapping{validMapping(), bad}, "T_"); err == nil {
			t.Fatal("want error for invalid identifier")
		}
	})

	t.Run("reserved rows are not validated", func(t *testing.T) {
		t.Parallel()

		// A garbage row under the reserved prefix is skipped, not fatal.
		skipped := Mapping{TableName: "T_junk", ColumnName: "a b c"}

		out, err := FilterMappings([]Mapping{skipped, validMapping()}, "T_")
		if err != nil {
			t.Fatalf("FilterMappings: %v", err)
		}
		if len(out) != 1 {
			t.Fatalf("out = %+v, want 1 row", out)
		}
	})
}
