package classification

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the single display tag derived for a submission.
type Status int

const (
	// StatusUnclassified means no roster reviewer has expressed a usable opinion.
	StatusUnclassified Status = iota
	// StatusGeneralRejected means general editors rated it and none favorably.
	StatusGeneralRejected
	// StatusGeneralApproved means at least one general editor rated 〇 or △.
	StatusGeneralApproved
	// StatusPrimaryRejected means the primary review body rated it and none favorably.
	StatusPrimaryRejected
	// StatusPrimaryApproved means at least one primary reviewer rated 〇 or △.
	StatusPrimaryApproved
	// StatusBlocking means some reviewer rated NG.
	StatusBlocking
)

var statusLabels = map[Status]string{
	StatusBlocking:        "NG",
	StatusPrimaryApproved: "Admin〇△",
	StatusPrimaryRejected: "Admin×",
	StatusGeneralApproved: "Gen〇△",
	StatusGeneralRejected: "Gen×",
	StatusUnclassified:    "-",
}

var statusKeys = map[Status]string{
	StatusBlocking:        "blocking",
	StatusPrimaryApproved: "primary_approved",
	StatusPrimaryRejected: "primary_rejected",
	StatusGeneralApproved: "general_approved",
	StatusGeneralRejected: "general_rejected",
	StatusUnclassified:    "unclassified",
}

// Statuses lists every status in display priority order.
func Statuses() []Status {
	return []Status{
		StatusBlocking,
		StatusPrimaryApproved,
		StatusPrimaryRejected,
		StatusGeneralApproved,
		StatusGeneralRejected,
		StatusUnclassified,
	}
}

// String returns the display label.
func (s Status) String() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Key returns the stable machine name used in query strings and JSON.
func (s Status) Key() string {
	if key, ok := statusKeys[s]; ok {
		return key
	}
	return ""
}

// ParseStatus accepts either the machine key or the display label.
func ParseStatus(raw string) (Status, error) {
	trimmed := strings.TrimSpace(raw)
	for _, status := range Statuses() {
		if strings.EqualFold(trimmed, status.Key()) || trimmed == status.String() {
			return status, nil
		}
	}
	return StatusUnclassified, fmt.Errorf("classification: unknown status %q", raw)
}

// MarshalJSON encodes the status by its machine key.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Key())
}

// Flags holds the independent per-cohort facts about one submission. More than one
// cohort flag may be set at once; Status collapses them.
type Flags struct {
	IsBlocking        bool `json:"is_blocking"`
	IsPrimaryApproved bool `json:"is_primary_approved"`
	IsPrimaryRejected bool `json:"is_primary_rejected"`
	IsGeneralApproved bool `json:"is_general_approved"`
	IsGeneralRejected bool `json:"is_general_rejected"`
	IsUnclassified    bool `json:"is_unclassified"`
}

// Status applies the display priority to the flags.
func (f Flags) Status() Status {
	switch {
	case f.IsBlocking:
		return StatusBlocking
	case f.IsPrimaryApproved:
		return StatusPrimaryApproved
	case f.IsPrimaryRejected:
		return StatusPrimaryRejected
	case f.IsGeneralApproved:
		return StatusGeneralApproved
	case f.IsGeneralRejected:
		return StatusGeneralRejected
	default:
		return StatusUnclassified
	}
}
