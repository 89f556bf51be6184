package repository

import (
	"strings"
	"testing"
	"time"
)

func TestTreeFilter_Where_Zero(t *testing.T) {
	cond, args := TreeFilter{}.Where()
	if cond != "is_active = 1" {
		t.Errorf("unexpected condition: %q", cond)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestTreeFilter_Where_AllCriteria(t *testing.T) {
	alive := true
	after := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := TreeFilter{
		ForestIDs:     []uint64{3, 7},
		Species:       "Picea abies",
		IsAlive:       &alive,
		PlantedAfter:  &after,
		PlantedBefore: &before,
	}
	cond, args := f.Where()

	for _, want := range []string{
		"is_active = 1",
		"forest_id IN (?,?)",
		"LOWER(species) = LOWER(?)",
		"is_alive = ?",
		"planted_at >= ?",
		"planted_at <= ?",
	} {
		if !strings.Contains(cond, want) {
			t.Errorf("condition %q missing %q", cond, want)
		}
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
	if args[0] != uint64(3) || args[1] != uint64(7) {
		t.Errorf("forest id args out of order: %v", args[:2])
	}
	if args[2] != "Picea abies" {
		t.Errorf("unexpected species arg: %v", args[2])
	}
}

func TestTreeFilter_Where_IncludeDead(t *testing.T) {
	cond, _ := TreeFilter{IncludeDead: true}.Where()
	if strings.Contains(cond, "is_active") {
		t.Errorf("IncludeDead should drop the is_active condition, got %q", cond)
	}
	if cond != "1=1" {
		t.Errorf("empty filter with IncludeDead should match all rows, got %q", cond)
	}
}

func TestTreeFilter_IsZero(t *testing.T) {
	if !(TreeFilter{}).IsZero() {
		t.Error("zero filter should report IsZero")
	}
	if (TreeFilter{Species: "oak"}).IsZero() {
		t.Error("filter with species should not report IsZero")
	}
	// IncludeDead alone is not a selection criterion.
	if !(TreeFilter{IncludeDead: true}).IsZero() {
		t.Error("IncludeDead alone should still report IsZero")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(1); got != "?" {
		t.Errorf("placeholders(1) = %q", got)
	}
	if got := placeholders(3); got != "?,?,?" {
		t.Errorf("placeholders(3) = %q", got)
	}
	if got := placeholders(0); got != "" {
		t.Errorf("placeholders(0) = %q", got)
	}
}
