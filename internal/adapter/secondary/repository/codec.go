package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alarm-manager/internal/domain"
)

const (
	// SchemaVersion is the payload version written by Encode.
	SchemaVersion = 1

	// Namespace is the fixed key under which the alarm set is stored.
	Namespace = "alarm-manager"
)

// document represents the JSON structure stored by every backend.
type document struct {
	Version int      `json:"version"`
	Alarms  []record `json:"alarms"`
}

type record struct {
	ID          string `json:"id"`
	Time        int64  `json:"time"`
	Ringtone    string `json:"ringtone"`
	Enabled     bool   `json:"enabled"`
	SnoozeUntil *int64 `json:"snoozeUntil,omitempty"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
}

// legacyRecord is one element of the unversioned array format.
type legacyRecord struct {
	Time      int64  `json:"time"`
	Ringtone  string `json:"ringtone"`
	Enabled   *bool  `json:"enabled"`
	IsEnabled *bool  `json:"isEnabled"`
}

// Encode serializes alarms in the order given.
func Encode(alarms []domain.Alarm) ([]byte, error) {
	doc := document{Version: SchemaVersion, Alarms: make([]record, 0, len(alarms))}
	for _, a := range alarms {
		r := record{
			ID:       a.ID,
			Time:     a.ScheduledTime.UnixMilli(),
			Ringtone: a.RingtoneRef,
			Enabled:  a.Enabled,
		}
		if a.SnoozeUntil != nil {
			ms := a.SnoozeUntil.UnixMilli()
			r.SnoozeUntil = &ms
		}
		if !a.CreatedAt.IsZero() {
			r.CreatedAt = a.CreatedAt.UnixMilli()
		}
		doc.Alarms = append(doc.Alarms, r)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal alarms: %w", err)
	}
	return data, nil
}

// Decode parses a payload written by Encode or by the legacy array format.
// Empty input decodes to an empty set.
func Decode(data []byte) ([]domain.Alarm, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		return decodeLegacy(data)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal alarms: %w", err)
	}
	if doc.Version > SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", doc.Version)
	}

	seen := make(map[string]bool, len(doc.Alarms))
	alarms := make([]domain.Alarm, 0, len(doc.Alarms))
	for _, r := range doc.Alarms {
		a := domain.Alarm{
			ID:            r.ID,
			ScheduledTime: time.UnixMilli(r.Time),
			RingtoneRef:   r.Ringtone,
			Enabled:       r.Enabled,
		}
		if a.ID == "" || seen[a.ID] {
			a.ID = uuid.NewString()
		}
		seen[a.ID] = true
		if r.SnoozeUntil != nil {
			t := time.UnixMilli(*r.SnoozeUntil)
			a.SnoozeUntil = &t
		}
		if r.CreatedAt != 0 {
			a.CreatedAt = time.UnixMilli(r.CreatedAt)
		}
		alarms = append(alarms, a)
	}
	return alarms, nil
}

func decodeLegacy(data []byte) ([]domain.Alarm, error) {
	var legacy []legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("unmarshal legacy alarms: %w", err)
	}

	alarms := make([]domain.Alarm, 0, len(legacy))
	for _, r := range legacy {
		enabled := true
		switch {
		case r.Enabled != nil:
			enabled = *r.Enabled
		case r.IsEnabled != nil:
			enabled = *r.IsEnabled
		}
		alarms = append(alarms, domain.Alarm{
			ID:            uuid.NewString(),
			ScheduledTime: time.UnixMilli(r.Time),
			RingtoneRef:   r.Ringtone,
			Enabled:       enabled,
		})
	}
	return alarms, nil
}
