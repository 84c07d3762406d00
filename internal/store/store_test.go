package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleLots() []*Lot {
	return []*Lot{
		{
			LOT:               1,
			Accounts:          []string{"1234567890", "2345678901"},
			Count:             2,
			ReferenceID:       "C320461082",
			Timestamp:         "2026-08-01 10:15:00",
			FetchStatus:       "OK",
			CountMatch:        "OK (2/2)",
			DueDateCheck:      "OK (2 rows)",
			Selected:          "OK (2 new)",
			SelectionVerified: "OK (2/2)",
			SaveStatus:        "OK",
			PayStatus:         "OK",
		},
		{
			LOT:      2,
			Accounts: []string{"3456789012"},
			Count:    1,
			Remarks:  "count mismatch: expected 1, displayed 0",
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lots.csv")
	want := sampleLots()

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d lots, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].LOT != want[i].LOT ||
			strings.Join(got[i].Accounts, " ") != strings.Join(want[i].Accounts, " ") ||
			got[i].Count != want[i].Count ||
			got[i].ReferenceID != want[i].ReferenceID ||
			got[i].PayStatus != want[i].PayStatus ||
			got[i].Remarks != want[i].Remarks {
			t.Errorf("lot %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestSaveIsByteStableAcrossRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lots.csv")
	lots := sampleLots()

	if err := Save(path, lots); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Save(path, lots); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("rewriting unchanged lots produced different bytes")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lots.csv")
	if err := Save(path, sampleLots()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "lots.csv" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only lots.csv", names)
	}
}

func TestLoadRejectsWrongHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lots.csv")
	if err := os.WriteFile(path, []byte("A,B,C\n1,2,3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected header error")
	}
}

func TestLoadRejectsBadNumericColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lots.csv")
	row := strings.Join(Header, ",") + "\n" +
		"x,111,2,,,,,,,,,,\n"
	if err := os.WriteFile(path, []byte(row), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric LOT")
	}
}

func TestPaid(t *testing.T) {
	tests := []struct {
		payStatus string
		want      bool
	}{
		{"OK", true},
		{"OK (2/2)", true},
		{"", false},
		{"FAIL", false},
		{"FAIL (no reference)", false},
	}
	for _, tt := range tests {
		lot := &Lot{PayStatus: tt.payStatus}
		if lot.Paid() != tt.want {
			t.Errorf("Paid() with %q = %v, want %v", tt.payStatus, lot.Paid(), tt.want)
		}
	}
}
