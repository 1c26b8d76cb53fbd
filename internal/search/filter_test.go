package search

import (
	"testing"
	"time"
)

func TestParseFilterExpressionMatchesSpecExample(t *testing.T) {
	f, err := ParseFilterExpression("folder:auth tag:jwt date:2025-12-01..2025-12-07")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Folder != "auth" || f.Tag != "jwt" {
		t.Fatalf("unexpected filter: %+v", f)
	}
	wantFrom := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2025, 12, 7, 23, 59, 59, 999000000, time.UTC)
	if f.DateAfter == nil || !f.DateAfter.Equal(wantFrom) {
		t.Errorf("dateFrom = %v, want %v", f.DateAfter, wantFrom)
	}
	if f.DateBefore == nil || f.DateBefore.Sub(wantTo) > time.Millisecond || f.DateBefore.Sub(wantTo) < -time.Millisecond {
		t.Errorf("dateTo = %v, want %v", f.DateBefore, wantTo)
	}
}

func TestParseFilterExpressionBareStringAliasesFolder(t *testing.T) {
	f, err := ParseFilterExpression("billing")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Folder != "billing" {
		t.Errorf("expected bare string to alias folder, got %+v", f)
	}
}

func TestParseFilterExpressionInvalidAtomErrors(t *testing.T) {
	if _, err := ParseFilterExpression("date:not-a-date"); err != ErrInvalidFilterAtom {
		t.Errorf("expected ErrInvalidFilterAtom, got %v", err)
	}
}

func TestFilterANDCompositionIsOrderIndependent(t *testing.T) {
	createdAt := time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC)
	f1, _ := ParseFilterExpression("folder:auth")
	f2, _ := ParseFilterExpression("date:2025-12-01..2025-12-07")

	applyF1ThenF2 := f1.Matches("auth", createdAt, nil) && f2.Matches("auth", createdAt, nil)
	applyF2ThenF1 := f2.Matches("auth", createdAt, nil) && f1.Matches("auth", createdAt, nil)
	if applyF1ThenF2 != applyF2ThenF1 {
		t.Errorf("expected AND composition to be order-independent")
	}
	if !applyF1ThenF2 {
		t.Error("expected both filters to match")
	}
}

func TestFilterDateExactMatchesOnlyThatDay(t *testing.T) {
	f, err := ParseFilterExpression("date:2025-12-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	match := time.Date(2025, 12, 1, 23, 59, 0, 0, time.UTC)
	noMatch := time.Date(2025, 12, 2, 0, 0, 1, 0, time.UTC)
	if !f.Matches("any", match, nil) {
		t.Error("expected exact-day match to succeed")
	}
	if f.Matches("any", noMatch, nil) {
		t.Error("expected next day not to match exact-day filter")
	}
}
