package appointment

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var palette = []string{
	"#1e88e5",
	"#43a047",
	"#8e24aa",
	"#f4511e",
	"#00897b",
	"#fdd835",
	"#6d4c41",
	"#d81b60",
	"#3949ab",
	"#7cb342",
}

// ColorCache hands out a stable palette color per professional. Two
// professionals may share a color once there are more of them than palette
// entries.
type ColorCache struct {
	mu     sync.Mutex
	colors map[string]string
}

func NewColorCache() *ColorCache {
	return &ColorCache{colors: make(map[string]string)}
}

// Obtain returns the color for id, computing and caching it on first use.
func (c *ColorCache) Obtain(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if color, ok := c.colors[id]; ok {
		return color
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	color := palette[h.Sum32()%uint32(len(palette))]
	c.colors[id] = color
	return color
}

// Reset forgets every cached color.
func (c *ColorCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.colors = make(map[string]string)
}

func (c *ColorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.colors)
}

type CalendarEvent struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Color          string    `json:"color"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Status         Status    `json:"status"`
}

// Project turns appointments into calendar events in loc. Cancelled
// appointments are skipped; a record whose date or time does not parse is
// reported instead of silently dropped.
func Project(appts []Appointment, colors *ColorCache, loc *time.Location) ([]CalendarEvent, error) {
	events := make([]CalendarEvent, 0, len(appts))
	for _, a := range appts {
		if a.Status == StatusCancelled {
			continue
		}
		start, err := a.Start(loc)
		if err != nil {
			return nil, fmt.Errorf("project appointment %s: %w", a.ID, err)
		}
		events = append(events, CalendarEvent{
			ID:             a.ID,
			Title:          fmt.Sprintf("%s - %s", a.PatientName, a.Procedure),
			Start:          start,
			End:            start.Add(time.Duration(a.DurationMinutes) * time.Minute),
			Color:          colors.Obtain(a.ProfessionalID.String()),
			ProfessionalID: a.ProfessionalID,
			Status:         a.Status,
		})
	}
	return events, nil
}

// Draft is an unsaved appointment form.
type Draft struct {
	EditingID       *uuid.UUID `json:"editing_id,omitempty"`
	ProfessionalID  uuid.UUID  `json:"professional_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
	Procedure       string     `json:"procedure"`
	Notes           string     `json:"notes"`
}

// DraftFromSlot starts a new draft at the selected slot's start.
func DraftFromSlot(start time.Time) Draft {
	return Draft{
		Date: start.Format(DateLayout),
		Time: start.Format(TimeLayout),
	}
}

// DraftFromAppointment opens an existing appointment for editing.
func DraftFromAppointment(a Appointment) Draft {
	id := a.ID
	return Draft{
		EditingID:       &id,
		ProfessionalID:  a.ProfessionalID,
		PatientID:       a.PatientID,
		Date:            a.Date,
		Time:            a.Time,
		DurationMinutes: a.DurationMinutes,
		Procedure:       a.Procedure,
		Notes:           a.Notes,
	}
}

// SetProcedure selects a procedure. New drafts take the catalog duration;
// drafts editing a stored appointment keep theirs.
func (d *Draft) SetProcedure(name string) error {
	minutes, err := DefaultDuration(name)
	if err != nil {
		return err
	}
	d.Procedure = name
	if d.EditingID == nil {
		d.DurationMinutes = minutes
	}
	return nil
}

// CreateInput converts a new draft into service input.
func (d Draft) CreateInput() CreateInput {
	return CreateInput{
		ProfessionalID:  d.ProfessionalID,
		PatientID:       d.PatientID,
		Date:            d.Date,
		Time:            d.Time,
		DurationMinutes: d.DurationMinutes,
		Procedure:       d.Procedure,
		Notes:           d.Notes,
	}
}
