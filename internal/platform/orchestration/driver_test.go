package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

type scriptedStarter struct {
	status    RunStatus
	statusErr error
	startErr  error
	started   []string
}

func (s *scriptedStarter) Status(context.Context, string) (RunStatus, error) {
	return s.status, s.statusErr
}

func (s *scriptedStarter) StartNew(_ context.Context, _ string, id string, _ any) (string, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started = append(s.started, id)
	return id, nil
}

func TestDriver_StartsWhenNoInstanceExists(t *testing.T) {
	starter := &scriptedStarter{statusErr: sentinel.ErrNotFound}
	driver := NewDriver(starter)

	id, err := driver.StartOrchestrator(context.Background(), "wf", "id-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Equal(t, []string{"id-1"}, starter.started)
}

func TestDriver_SkipsStartWhenInstanceIsLive(t *testing.T) {
	for _, status := range []RunStatus{RunStatusPending, RunStatusRunning} {
		t.Run(string(status), func(t *testing.T) {
			starter := &scriptedStarter{status: status}
			driver := NewDriver(starter)

			id, err := driver.StartOrchestrator(context.Background(), "wf", "id-1", nil)
			require.NoError(t, err)
			assert.Equal(t, "id-1", id)
			assert.Empty(t, starter.started, "a live instance must never be started again")
		})
	}
}

func TestDriver_RestartsTerminalInstance(t *testing.T) {
	for _, status := range []RunStatus{RunStatusCompleted, RunStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			starter := &scriptedStarter{status: status}
			driver := NewDriver(starter)

			id, err := driver.StartOrchestrator(context.Background(), "wf", "id-1", nil)
			require.NoError(t, err)
			assert.Equal(t, "id-1", id)
			assert.Equal(t, []string{"id-1"}, starter.started)
		})
	}
}

func TestDriver_PropagatesStatusError(t *testing.T) {
	statusErr := errors.New("status backend down")
	starter := &scriptedStarter{statusErr: statusErr}
	driver := NewDriver(starter)

	_, err := driver.StartOrchestrator(context.Background(), "wf", "id-1", nil)
	assert.ErrorIs(t, err, statusErr)
	assert.Empty(t, starter.started)
}

func TestDriver_PropagatesStartError(t *testing.T) {
	startErr := errors.New("start rejected")
	starter := &scriptedStarter{statusErr: sentinel.ErrNotFound, startErr: startErr}
	driver := NewDriver(starter)

	_, err := driver.StartOrchestrator(context.Background(), "wf", "id-1", nil)
	assert.ErrorIs(t, err, startErr)
}
