package timesheet

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pusulahq/pusula/backend/internal/store"
)

// DayStatus classifies one calendar day of an employee's month.
type DayStatus string

const (
	StatusWork    DayStatus = "work"
	StatusLeave   DayStatus = "leave"
	StatusAbsent  DayStatus = "absent"
	StatusWeekend DayStatus = "weekend"
)

// ScheduleDay is the scheduled work window for one weekday, as wall
// clock strings ("09:00").
type ScheduleDay struct {
	Start  string
	Finish string
}

// Schedule maps weekdays to their work window. Weekdays without an
// entry are non-working days.
type Schedule map[time.Weekday]ScheduleDay

// DefaultSchedule is the fixed company week: Monday through Friday,
// 09:00 to 18:00.
func DefaultSchedule() Schedule {
	day := ScheduleDay{Start: "09:00", Finish: "18:00"}
	return Schedule{
		time.Monday:    day,
		time.Tuesday:   day,
		time.Wednesday: day,
		time.Thursday:  day,
		time.Friday:    day,
	}
}

// DefaultLunchBreak is deducted from a work day's span when the span
// exceeds it.
const DefaultLunchBreak = time.Hour

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Config holds the fixed inputs of timesheet derivation: the weekly
// schedule, the workplace geofence and the lunch deduction.
type Config struct {
	Schedule     Schedule
	Workplace    Coordinate
	RadiusMeters float64
	LunchBreak   time.Duration
	Location     *time.Location
}

func (c Config) withDefaults() Config {
	if c.Schedule == nil {
		c.Schedule = DefaultSchedule()
	}
	if c.LunchBreak <= 0 {
		c.LunchBreak = DefaultLunchBreak
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Entry is the derived attendance record for one calendar day. Entries
// are never persisted; they are recomputed from source data on demand.
type Entry struct {
	Date            string    `json:"date"`
	Status          DayStatus `json:"status"`
	CheckInSeconds  int64     `json:"checkInS,omitempty"`
	CheckOutSeconds int64     `json:"checkOutS,omitempty"`
	ScheduledHours  float64   `json:"scheduledHours"`
	TotalHours      float64   `json:"totalHours"`
	OvertimeHours   float64   `json:"overtimeHours"`
	MissingHours    float64   `json:"missingHours"`
}

// Input is the source data for one (employee, year, month) derivation.
type Input struct {
	EmployeeID string
	Year       int
	Month      time.Month
	Pings      []store.LocationPing
	Leaves     []store.LeaveRequest
}

// Generate derives one entry per calendar day of the month. It is a
// pure function of its inputs: identical inputs yield identical
// output. Approved leave wins over ping-derived status; a scheduled
// day with no in-range pings is absent, never weekend.
func Generate(cfg Config, input Input) []Entry {
	cfg = cfg.withDefaults()

	first := time.Date(input.Year, input.Month, 1, 0, 0, 0, 0, cfg.Location)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	entries := make([]Entry, 0, daysInMonth)
	for day := 1; day <= daysInMonth; day++ {
		dayStart := time.Date(input.Year, input.Month, day, 0, 0, 0, 0, cfg.Location)
		entries = append(entries, deriveDay(cfg, input, dayStart))
	}
	return entries
}

func deriveDay(cfg Config, input Input, dayStart time.Time) Entry {
	entry := Entry{Date: dayStart.Format("2006-01-02")}

	scheduleDay, scheduled := cfg.Schedule[dayStart.Weekday()]
	if !scheduled {
		entry.Status = StatusWeekend
		return entry
	}

	scheduledHours := scheduledDuration(cfg, dayStart, scheduleDay).Hours()
	entry.ScheduledHours = roundHours(scheduledHours)

	if onApprovedLeave(input.Leaves, input.EmployeeID, entry.Date) {
		entry.Status = StatusLeave
		return entry
	}

	checkIn, checkOut, found := pingWindow(cfg, input, dayStart)
	if !found {
		entry.Status = StatusAbsent
		entry.MissingHours = entry.ScheduledHours
		return entry
	}

	entry.Status = StatusWork
	entry.CheckInSeconds = checkIn.Unix()
	entry.CheckOutSeconds = checkOut.Unix()

	worked := checkOut.Sub(checkIn)
	if worked > cfg.LunchBreak {
		worked -= cfg.LunchBreak
	}
	entry.TotalHours = roundHours(worked.Hours())

	if entry.TotalHours > entry.ScheduledHours {
		entry.OvertimeHours = roundHours(entry.TotalHours - entry.ScheduledHours)
	} else {
		entry.MissingHours = roundHours(entry.ScheduledHours - entry.TotalHours)
	}
	return entry
}

// scheduledDuration is the net scheduled working time: the window span
// minus the lunch deduction when the span exceeds it.
func scheduledDuration(cfg Config, dayStart time.Time, scheduleDay ScheduleDay) time.Duration {
	start, err := parseTimeOnDate(dayStart, scheduleDay.Start)
	if err != nil {
		return 0
	}
	finish, err := parseTimeOnDate(dayStart, scheduleDay.Finish)
	if err != nil {
		return 0
	}
	if finish.Before(start) {
		finish = finish.Add(24 * time.Hour)
	}
	span := finish.Sub(start)
	if span > cfg.LunchBreak {
		span -= cfg.LunchBreak
	}
	return span
}

// onApprovedLeave reports whether the date falls inside any approved
// leave request, inclusive on both ends. Dates are ISO strings so
// lexicographic comparison is chronological.
func onApprovedLeave(leaves []store.LeaveRequest, employeeID, date string) bool {
	for _, leave := range leaves {
		if leave.EmployeeID != employeeID || leave.Status != store.LeaveStatusApproved {
			continue
		}
		if leave.StartDate <= date && date <= leave.EndDate {
			return true
		}
	}
	return false
}

// pingWindow finds the earliest and latest in-range pings of the day.
func pingWindow(cfg Config, input Input, dayStart time.Time) (time.Time, time.Time, bool) {
	dayEnd := dayStart.AddDate(0, 0, 1)

	var inRange []int64
	for _, ping := range input.Pings {
		if ping.EmployeeID != input.EmployeeID {
			continue
		}
		at := time.Unix(ping.RecordedAtSeconds, 0).In(cfg.Location)
		if at.Before(dayStart) || !at.Before(dayEnd) {
			continue
		}
		distance := haversineMeters(cfg.Workplace, Coordinate{Latitude: ping.Latitude, Longitude: ping.Longitude})
		if distance > cfg.RadiusMeters {
			continue
		}
		inRange = append(inRange, ping.RecordedAtSeconds)
	}
	if len(inRange) == 0 {
		return time.Time{}, time.Time{}, false
	}

	sort.Slice(inRange, func(i, j int) bool { return inRange[i] < inRange[j] })
	checkIn := time.Unix(inRange[0], 0).In(cfg.Location)
	checkOut := time.Unix(inRange[len(inRange)-1], 0).In(cfg.Location)
	return checkIn, checkOut, true
}

const earthRadiusMeters = 6371000.0

func haversineMeters(a, b Coordinate) float64 {
	latA := a.Latitude * math.Pi / 180
	latB := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

func roundHours(hours float64) float64 {
	return math.Round(hours*100) / 100
}

// parseTimeOnDate combines a base date with a wall clock string ("08:00").
func parseTimeOnDate(baseDate time.Time, timeStr string) (time.Time, error) {
	parsed, err := time.Parse("15:04", timeStr)
	if err != nil {
		parsed, err = time.Parse("15:04:05", timeStr)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid wall clock value %q: %w", timeStr, err)
	}
	return time.Date(baseDate.Year(), baseDate.Month(), baseDate.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, baseDate.Location()), nil
}
