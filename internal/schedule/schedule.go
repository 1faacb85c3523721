// Package schedule evaluates deployment cron schedules. An empty schedule
// means the deployment is never scheduled and runs only on manual trigger.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/c3dc-labs/hubloader-go/internal/domain"
)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate checks the cron expression and timezone of an enabled schedule.
func Validate(s domain.Schedule) error {
	if !s.Enabled() {
		return errors.New("schedule is disabled")
	}
	if _, err := parser.Parse(strings.TrimSpace(s.Cron)); err != nil {
		return fmt.Errorf("cron expression %q: %w", s.Cron, err)
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone %q: %w", s.Timezone, err)
		}
	}
	return nil
}

// Next returns the first instant after the given time at which the schedule
// fires.
func Next(s domain.Schedule, after time.Time) (time.Time, error) {
	if !s.Enabled() {
		return time.Time{}, errors.New("schedule is disabled")
	}
	expr, err := parser.Parse(strings.TrimSpace(s.Cron))
	if err != nil {
		return time.Time{}, fmt.Errorf("cron expression %q: %w", s.Cron, err)
	}
	loc := time.UTC
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("timezone %q: %w", s.Timezone, err)
		}
	}
	return expr.Next(after.In(loc)), nil
}
