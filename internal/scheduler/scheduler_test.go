package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arvscout/internal/processor"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestRunNow_RecordsResult(t *testing.T) {
	s := NewScheduler(func(ctx context.Context) (*processor.Summary, error) {
		return &processor.Summary{RunID: "r1", Rows: 4}, nil
	}, quietLogger(), nil)

	assert.Nil(t, s.Last())
	sum, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Rows)

	last := s.Last()
	require.NotNil(t, last)
	assert.Equal(t, "r1", last.Summary.RunID)
	assert.Empty(t, last.Error)
}

func TestRunNow_RecordsError(t *testing.T) {
	boom := errors.New("boom")
	s := NewScheduler(func(ctx context.Context) (*processor.Summary, error) {
		return nil, boom
	}, quietLogger(), nil)

	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "boom", s.Last().Error)
}

func TestTrigger_RejectsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(func(ctx context.Context) (*processor.Summary, error) {
		close(started)
		<-release
		return &processor.Summary{}, nil
	}, quietLogger(), nil)

	require.NoError(t, s.Trigger())
	<-started

	assert.ErrorIs(t, s.Trigger(), ErrRunInProgress)
	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	s.Stop()
	require.NotNil(t, s.Last())
}

func TestSchedule(t *testing.T) {
	s := NewScheduler(func(ctx context.Context) (*processor.Summary, error) {
		return &processor.Summary{}, nil
	}, quietLogger(), nil)

	_, err := s.Schedule("not a spec")
	assert.Error(t, err)

	id, err := s.Schedule("0 6 * * *")
	require.NoError(t, err)
	assert.NotZero(t, id)

	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	assert.Nil(t, s.Last())
}
