package generation

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     string
		kind    Kind
		display string
	}{
		{"", KindMissing, MissingPlaceholder},
		{"   ", KindMissing, MissingPlaceholder},
		{"NaN", KindMissing, MissingPlaceholder},
		{"null", KindMissing, MissingPlaceholder},
		{" Ana ", KindText, "Ana"},
		{"42", KindNumber, "42"},
		{"-3.5", KindNumber, "-3.5"},
		{"0.25", KindNumber, "0.25"},
		{"007", KindText, "007"},
		{"1,5", KindText, "1,5"},
		{"Inf", KindText, "Inf"},
		{"12abc", KindText, "12abc"},
	}
	for _, tt := range tests {
		v := ParseValue(tt.raw)
		if v.Kind() != tt.kind {
			t.Errorf("ParseValue(%q).Kind() = %v, want %v", tt.raw, v.Kind(), tt.kind)
		}
		if v.Display() != tt.display {
			t.Errorf("ParseValue(%q).Display() = %q, want %q", tt.raw, v.Display(), tt.display)
		}
	}
}

func TestBuildTableAlignsRows(t *testing.T) {
	table, err := BuildTable(
		[]string{" ID_UNICO ", "NOME", "NOME", ""},
		[][]string{
			{"1", "Ana", "Bia", "x"},
			{"2"},
			{"", " ", "", ""},
		},
	)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if got := strings.Join(table.Columns(), "|"); got != "ID_UNICO|NOME|NOME.1|Unnamed: 3" {
		t.Fatalf("unexpected columns %q", got)
	}
	if table.Len() != 3 {
		t.Fatalf("expected blank record kept, got %d rows", table.Len())
	}
	if !table.Row(1)["NOME"].IsMissing() {
		t.Fatalf("expected short row padded with missing, got %q", table.Row(1)["NOME"].String())
	}
	for _, col := range table.Columns() {
		if !table.Value(2, col).IsMissing() {
			t.Fatalf("blank record column %s = %q, want missing", col, table.Value(2, col).String())
		}
	}
}

func TestBuildTableKeepsBlankRowPositions(t *testing.T) {
	table, err := BuildTable(
		[]string{"ID_UNICO", "NOME"},
		[][]string{{"A1", "Ana"}, {"", ""}, {"", "Carla"}},
	)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("rows = %d, want 3", table.Len())
	}
	if got := table.Value(2, "NOME").String(); got != "Carla" {
		t.Fatalf("row 3 NOME = %q, want Carla", got)
	}
}

func TestTableRowIsCopy(t *testing.T) {
	table, err := BuildTable([]string{"ID_UNICO"}, [][]string{{"A1"}})
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	row := table.Row(0)
	row["ID_UNICO"] = Text("changed")
	delete(row, "ID_UNICO")
	if got := table.Value(0, "ID_UNICO").String(); got != "A1" {
		t.Fatalf("table mutated through Row: got %q", got)
	}
	if !table.Value(0, "OUTRA").IsMissing() {
		t.Fatal("unknown column should read as missing")
	}
}

func TestBuildTableRejectsWideRecords(t *testing.T) {
	_, err := BuildTable([]string{"A", "B"}, [][]string{{"1", "2", "3"}})
	if !errors.Is(err, apperrors.ErrMalformedTable) {
		t.Fatalf("expected ErrMalformedTable, got %v", err)
	}
}

func TestRowErrorUnwrap(t *testing.T) {
	cause := errors.New("image too large")
	err := &RowError{Row: 3, TrackingID: "X1", Stage: StageRender, Err: cause}
	if !errors.Is(err, apperrors.ErrRenderFailure) {
		t.Fatal("RowError should match ErrRenderFailure")
	}
	if !errors.Is(err, cause) {
		t.Fatal("RowError should match its cause")
	}
	if !strings.Contains(err.Error(), "row 3") || !strings.Contains(err.Error(), "X1") {
		t.Fatalf("message should name row and id: %q", err.Error())
	}
}

func TestMissingColumnsErrorListsPresent(t *testing.T) {
	err := &MissingColumnsError{
		Required: []string{"ID_UNICO"},
		Missing:  []string{"ID_UNICO"},
		Present:  []string{"CODIGO", "NOME"},
	}
	if !errors.Is(err, apperrors.ErrMissingColumns) {
		t.Fatal("expected ErrMissingColumns")
	}
	if !strings.Contains(err.Error(), "CODIGO, NOME") {
		t.Fatalf("message should list present columns: %q", err.Error())
	}
}
