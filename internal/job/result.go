package job

import (
	"strconv"
	"time"

	"github.com/ocx/checkworker/internal/envelope"
)

// ReturnCode mirrors the host monitoring convention.
type ReturnCode int

const (
	StatusOK       ReturnCode = 0
	StatusWarning  ReturnCode = 1
	StatusCritical ReturnCode = 2
	StatusUnknown  ReturnCode = 3
)

// Result is published back to the result queue for every dispatched job —
// monitoring UX requires that every check produces a result, even a
// synthesized one for an expired or spawn-failed job.
type Result struct {
	HostName           string
	ServiceDescription string
	CheckOptions       string
	ScheduledCheck     string
	RescheduleCheck    string
	Latency            string

	StartTime    time.Time
	FinishTime   time.Time
	ReturnCode   ReturnCode
	Output       string
	EarlyTimeout bool
	ExitedOK     bool
	Source       string
}

// ForJob copies the passthrough identity fields from j into a Result, the
// way the original worker echoes check_options/scheduled_check/
// reschedule_check/latency back onto the result so the monitoring host's
// performance-data pipeline keeps working without having to look the job
// back up. next_check is not copied; a Result has no field for it.
func ForJob(j *Job, source string) *Result {
	return &Result{
		HostName:           j.HostName,
		ServiceDescription: j.ServiceDescription,
		CheckOptions:       j.CheckOptions,
		ScheduledCheck:     j.ScheduledCheck,
		RescheduleCheck:    j.RescheduleCheck,
		Latency:            j.Latency,
		StartTime:          j.StartTime,
		Source:             source,
	}
}

// Encode renders the result as an envelope.Map ready for envelope.Encode.
func (r *Result) Encode() envelope.Map {
	m := envelope.Map{
		"host_name":        r.HostName,
		"check_options":    r.CheckOptions,
		"scheduled_check":  r.ScheduledCheck,
		"reschedule_check": r.RescheduleCheck,
		"latency":          r.Latency,
		"start_time":       strconv.FormatInt(r.StartTime.Unix(), 10),
		"finish_time":      strconv.FormatInt(r.FinishTime.Unix(), 10),
		"return_code":      strconv.Itoa(int(r.ReturnCode)),
		"early_timeout":    boolStr(r.EarlyTimeout),
		"exited_ok":        boolStr(r.ExitedOK),
		"output":           r.Output,
		"source":           r.Source,
	}
	if r.ServiceDescription != "" {
		m["service_description"] = r.ServiceDescription
	}
	return m
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ExpiredResult synthesizes the UNKNOWN result for a job discarded because
// it arrived older than max_age, per spec §4.2.
func ExpiredResult(j *Job, source string) *Result {
	r := ForJob(j, source)
	r.FinishTime = time.Now()
	r.ReturnCode = StatusUnknown
	r.Output = "(Could Not Start Check In Time)"
	r.ExitedOK = true
	return r
}
