package models

import "time"

// Severity of a progress message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Progress is one discrete step reported to the presentation layer.
type Progress struct {
	Time     time.Time `json:"ts"`
	RunID    string    `json:"run_id,omitempty"`
	Severity Severity  `json:"level"`
	Unit     string    `json:"unit,omitempty"`
	Message  string    `json:"message"`
}
