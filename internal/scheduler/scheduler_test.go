package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func (j *countingJob) Name() string {
	return j.name
}

func TestAddJobAndList(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 300s", &countingJob{name: "refresh_prices"}))
	require.NoError(t, s.AddJob("@every 300s", &countingJob{name: "refresh_fx"}))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "refresh_prices", jobs[0].Name)
	assert.Equal(t, "@every 300s", jobs[0].Schedule)
}

func TestAddJobInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	require.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{name: "refresh_prices"}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	failing := &countingJob{name: "broken", err: errors.New("upstream down")}
	require.Error(t, s.RunNow(failing))
}

func TestRunJobByName(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{name: "refresh_fx"}
	require.NoError(t, s.AddJob("@every 300s", job))

	found, err := s.RunJobByName("refresh_fx")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, job.runs)

	found, err = s.RunJobByName("missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "noop"}))

	s.Start()
	s.Stop()
}
