package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusRecord is the flat JSON document exchanged with the status service.
// Use Snapshot and NewStatusRecord to move between it and StatusSnapshot.
type StatusRecord struct {
	ID        uuid.UUID `json:"id"`
	Status    StateCode `json:"status"`
	Start     Timestamp `json:"start"`
	End       Timestamp `json:"end"`
	Filename  string    `json:"filename"`
	Requestor string    `json:"requestor"`
	Worker    string    `json:"worker"`
	ProcessID int       `json:"processID"`
	Reason    string    `json:"reason,omitempty"`
}

// NewStatusRecord flattens a snapshot. Only Processing records carry a process id.
func NewStatusRecord(s StatusSnapshot) StatusRecord {
	rec := StatusRecord{
		ID:        s.ID,
		Filename:  s.Filename,
		Requestor: s.Requestor,
	}
	switch v := s.State.(type) {
	case Processing:
		rec.Status = StateProcessing
		rec.Start = Timestamp{v.Start}
		rec.Worker = v.Worker
		rec.ProcessID = v.PID
	case Completed:
		rec.Status = StateCompleted
		rec.Start, rec.End = Timestamp{v.Start}, Timestamp{v.End}
		rec.Worker = v.Worker
	case Failed:
		rec.Status = StateFailed
		rec.Start, rec.End = Timestamp{v.Start}, Timestamp{v.End}
		rec.Worker = v.Worker
		rec.Reason = v.Reason
	default:
		rec.Status = StateQueued
	}
	return rec
}

// Snapshot converts the record into its tagged form.
func (r StatusRecord) Snapshot() (StatusSnapshot, error) {
	snap := StatusSnapshot{ID: r.ID, Filename: r.Filename, Requestor: r.Requestor}
	switch r.Status {
	case StateQueued:
		snap.State = Queued{}
	case StateProcessing:
		snap.State = Processing{Start: r.Start.Time, Worker: r.Worker, PID: r.ProcessID}
	case StateCompleted:
		snap.State = Completed{Start: r.Start.Time, End: r.End.Time, Worker: r.Worker}
	case StateFailed:
		snap.State = Failed{Start: r.Start.Time, End: r.End.Time, Worker: r.Worker, Reason: r.Reason}
	default:
		return StatusSnapshot{}, fmt.Errorf("unknown status code %d", int(r.Status))
	}
	return snap, nil
}

// UnmarshalJSON accepts either the numeric code or the state name.
func (c *StateCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if n, err := strconv.Atoi(strings.TrimSpace(name)); err == nil {
			return c.set(n)
		}
		code, err := ParseStateCode(name)
		if err != nil {
			return err
		}
		*c = code
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("status must be a number or state name: %w", err)
	}
	return c.set(n)
}

func (c *StateCode) set(n int) error {
	code := StateCode(n)
	if !code.Valid() {
		return fmt.Errorf("unknown status code %d", n)
	}
	*c = code
	return nil
}

// Timestamp is a time that tolerates the zone-less and zero-valued forms some
// status service deployments emit. The zero time encodes as null.
type Timestamp struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// MarshalJSON encodes RFC 3339 with nanoseconds, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON decodes RFC 3339, zone-less local timestamps and null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = normalizeZero(parsed)
		return nil
	}
	for _, layout := range zonelessLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			t.Time = normalizeZero(parsed)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// normalizeZero maps the 0001-01-01 sentinel in any zone onto the zero time.
func normalizeZero(v time.Time) time.Time {
	if v.Year() <= 1 {
		return time.Time{}
	}
	return v
}
