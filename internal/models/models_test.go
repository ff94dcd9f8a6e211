package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestBoard_Fields(t *testing.T) {
	typ := reflect.TypeOf(Board{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Name", "uniqueIndex")
	assertGormTag(t, typ, "Name", "size:64")
	assertGormTag(t, typ, "SDMuxVariant", "column:sdmux_variant")
	assertGormTag(t, typ, "Settings", "type:json")

	assertFieldType(t, typ, "USBPorts", "int")
	assertFieldType(t, typ, "UpdatedAt", "time.Time")
}

func TestBoardLease_Fields(t *testing.T) {
	typ := reflect.TypeOf(BoardLease{})

	// Board and status share the composite index used to find the active lease.
	assertGormTag(t, typ, "Board", "index:idx_board_status")
	assertGormTag(t, typ, "Status", "index:idx_board_status")
	assertGormTag(t, typ, "Status", "default:active")
	assertGormTag(t, typ, "Owner", "not null")
	assertGormTag(t, typ, "LastHeartbeat", "index")

	assertFieldType(t, typ, "LastHeartbeat", "time.Time")
	assertFieldType(t, typ, "ReleasedAt", "*time.Time")
}

func TestLeaseStatuses(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range []string{LeaseActive, LeaseReleased, LeaseExpired} {
		if s == "" || seen[s] {
			t.Errorf("lease status %q empty or duplicated", s)
		}
		seen[s] = true
	}
	if LeaseActive != "active" {
		t.Errorf("LeaseActive = %q, want active (matches column default)", LeaseActive)
	}
}

func TestPowerEvent_Fields(t *testing.T) {
	typ := reflect.TypeOf(PowerEvent{})

	assertGormTag(t, typ, "Board", "not null")
	assertGormTag(t, typ, "Board", "index")
	assertGormTag(t, typ, "Action", "size:16")
	assertGormTag(t, typ, "CreatedAt", "index")

	assertFieldType(t, typ, "OK", "bool")
}

func TestProbeResult_Fields(t *testing.T) {
	typ := reflect.TypeOf(ProbeResult{})

	assertGormTag(t, typ, "Component", "not null")
	assertGormTag(t, typ, "Detail", "type:text")
	assertGormTag(t, typ, "CreatedAt", "index")

	assertFieldType(t, typ, "OK", "bool")
}

func TestScenarioRun_Relations(t *testing.T) {
	typ := reflect.TypeOf(ScenarioRun{})

	assertGormTag(t, typ, "Scenario", "not null")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "Steps", "foreignKey:ScenarioRunID")

	assertFieldType(t, typ, "Steps", "[]models.StepRun")
	assertFieldType(t, typ, "FinishedAt", "*time.Time")
}

func TestStepRun_Fields(t *testing.T) {
	typ := reflect.TypeOf(StepRun{})

	assertGormTag(t, typ, "ScenarioRunID", "not null")
	assertGormTag(t, typ, "ScenarioRunID", "index")
	assertGormTag(t, typ, "Text", "type:text")

	assertFieldType(t, typ, "Sequence", "int")
	assertFieldType(t, typ, "DurationMs", "int64")
}

func TestScenarioRun_Instantiation(t *testing.T) {
	now := time.Now()
	run := ScenarioRun{
		Board:      "bench-01",
		Feature:    "Hot plug",
		Scenario:   "USB storage shows up",
		Status:     "passed",
		StartedAt:  now,
		FinishedAt: &now,
		Steps: []StepRun{
			{Sequence: 1, Text: "Given my USB storage device is detached", Status: "passed"},
			{Sequence: 2, Text: "Then I expect new disk(s)", Status: "passed", DurationMs: 12},
		},
	}

	if run.Scenario != "USB storage shows up" {
		t.Errorf("Scenario = %q", run.Scenario)
	}
	if len(run.Steps) != 2 || run.Steps[1].DurationMs != 12 {
		t.Errorf("Steps = %+v", run.Steps)
	}
}
