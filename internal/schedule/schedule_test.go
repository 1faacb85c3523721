package schedule

import (
	"testing"
	"time"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

func TestValidate_OK(t *testing.T) {
	s := domain.Schedule{Cron: "0 6 * * *", Timezone: "America/New_York"}
	if err := Validate(s); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestValidate_Disabled(t *testing.T) {
	if err := Validate(domain.Schedule{}); err == nil {
		t.Fatalf("disabled schedule expected error")
	}
}

func TestValidate_BadCron(t *testing.T) {
	if err := Validate(domain.Schedule{Cron: "not a cron"}); err == nil {
		t.Fatalf("bad cron expected error")
	}
	if err := Validate(domain.Schedule{Cron: "0 6 * *"}); err == nil {
		t.Fatalf("four-field cron expected error")
	}
}

func TestValidate_BadTimezone(t *testing.T) {
	s := domain.Schedule{Cron: "0 6 * * *", Timezone: "Mars/Olympus"}
	if err := Validate(s); err == nil {
		t.Fatalf("unknown timezone expected error")
	}
}

func TestNext_UTC(t *testing.T) {
	s := domain.Schedule{Cron: "0 6 * * *"}
	after := time.Date(2026, 8, 28, 5, 0, 0, 0, time.UTC)
	next, err := Next(s, after)
	if err != nil {
		t.Fatalf("Next() err=%v", err)
	}
	want := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next()=%v, want %v", next, want)
	}
}

func TestNext_RollsToNextDay(t *testing.T) {
	s := domain.Schedule{Cron: "0 6 * * *"}
	after := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	next, err := Next(s, after)
	if err != nil {
		t.Fatalf("Next() err=%v", err)
	}
	want := time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next()=%v, want %v", next, want)
	}
}

func TestNext_Timezone(t *testing.T) {
	s := domain.Schedule{Cron: "0 6 * * *", Timezone: "America/New_York"}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() err=%v", err)
	}
	after := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	next, err := Next(s, after)
	if err != nil {
		t.Fatalf("Next() err=%v", err)
	}
	want := time.Date(2026, 8, 28, 6, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("Next()=%v, want %v", next, want)
	}
}

func TestNext_Disabled(t *testing.T) {
	if _, err := Next(domain.Schedule{}, time.Now()); err == nil {
		t.Fatalf("disabled schedule expected error")
	}
}
