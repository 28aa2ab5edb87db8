// Package job implements the typed check record carried on every queue:
// construction is decode -> validate, matching spec §4.2.
package job

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ocx/checkworker/internal/envelope"
)

// Type identifies which of the three well-known queues a job came from.
type Type string

const (
	TypeHost         Type = "host"
	TypeService      Type = "service"
	TypeEventHandler Type = "eventhandler"
)

// ErrInvalid is returned by Validate when a required field is missing or
// out of range. The envelope is NAK'd on this error (broker keeps
// redelivery) per the error-handling design.
var ErrInvalid = errors.New("job: invalid")

// InvalidFieldError names the offending field so callers can log it, as
// spec §4.2's InvalidJob{field, reason} requires.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("job: invalid field %q: %s", e.Field, e.Reason)
}

func (e *InvalidFieldError) Unwrap() error { return ErrInvalid }

// Job is the typed record parsed from an envelope.
type Job struct {
	Type               Type
	HostName           string
	ServiceDescription string
	CommandLine        string
	Timeout            time.Duration
	StartTime          time.Time
	CoreStartTime      time.Time
	NextCheck          string
	CheckOptions       string
	ScheduledCheck     string
	RescheduleCheck    string
	Latency            string
}

// Decode parses the envelope.Map produced by the codec into a Job. It does
// not validate; call Validate separately so callers can distinguish a
// decode failure (malformed envelope) from a semantic failure (invalid job).
func Decode(m envelope.Map) (*Job, error) {
	j := &Job{
		Type:               Type(m["type"]),
		HostName:           m["host_name"],
		ServiceDescription: m["service_description"],
		CommandLine:        m["command_line"],
		NextCheck:          m["next_check"],
		CheckOptions:       m["check_options"],
		ScheduledCheck:     m["scheduled_check"],
		RescheduleCheck:    m["reschedule_check"],
		Latency:            m["latency"],
	}

	if v, ok := m["timeout"]; ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, &InvalidFieldError{Field: "timeout", Reason: "not an integer"}
		}
		j.Timeout = time.Duration(secs) * time.Second
	}

	if v, ok := m["start_time"]; ok {
		j.StartTime = parseEpoch(v)
	}
	if v, ok := m["core_start_time"]; ok {
		j.CoreStartTime = parseEpoch(v)
	}

	return j, nil
}

func parseEpoch(v string) time.Time {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}
	}
	secs := int64(f)
	nsec := int64((f - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nsec)
}

// Validate enforces the job invariants from the data model: command_line
// non-empty, timeout >= 1s, and service_description present for service jobs.
func (j *Job) Validate() error {
	switch j.Type {
	case TypeHost, TypeService, TypeEventHandler:
	default:
		return &InvalidFieldError{Field: "type", Reason: fmt.Sprintf("unknown job type %q", j.Type)}
	}

	if j.CommandLine == "" {
		return &InvalidFieldError{Field: "command_line", Reason: "must not be empty"}
	}

	if j.Timeout < time.Second {
		return &InvalidFieldError{Field: "timeout", Reason: "must be >= 1 second"}
	}

	if j.Type == TypeService && j.ServiceDescription == "" {
		return &InvalidFieldError{Field: "service_description", Reason: "required when type=service"}
	}

	return nil
}

// IsExpired reports whether the job is older than maxAge as measured from
// StartTime, implementing the §4.2 discard rule.
func (j *Job) IsExpired(now time.Time, maxAge time.Duration) bool {
	if j.StartTime.IsZero() {
		return false
	}
	return now.Sub(j.StartTime) > maxAge
}
