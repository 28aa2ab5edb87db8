package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForJob_CopiesPassthroughFields(t *testing.T) {
	j := &Job{
		HostName:        "web01",
		ScheduledCheck:  "1",
		RescheduleCheck: "1",
		Latency:         "0.123",
		CheckOptions:    "2",
	}
	r := ForJob(j, "checkworker")
	assert.Equal(t, j.HostName, r.HostName)
	assert.Equal(t, j.ScheduledCheck, r.ScheduledCheck)
	assert.Equal(t, j.RescheduleCheck, r.RescheduleCheck)
	assert.Equal(t, j.Latency, r.Latency)
	assert.Equal(t, "checkworker", r.Source)
}

func TestEncode_OmitsServiceDescriptionForHostJobs(t *testing.T) {
	r := &Result{HostName: "web01"}
	m := r.Encode()
	_, present := m["service_description"]
	assert.False(t, present)
}

func TestEncode_IncludesServiceDescriptionWhenSet(t *testing.T) {
	r := &Result{HostName: "web01", ServiceDescription: "disk"}
	m := r.Encode()
	assert.Equal(t, "disk", m["service_description"])
}

func TestExpiredResult(t *testing.T) {
	j := &Job{HostName: "web01", StartTime: time.Now().Add(-time.Hour)}
	r := ExpiredResult(j, "checkworker")
	assert.Equal(t, StatusUnknown, r.ReturnCode)
	assert.True(t, r.ExitedOK)
	assert.Equal(t, "(Could Not Start Check In Time)", r.Output)
}
