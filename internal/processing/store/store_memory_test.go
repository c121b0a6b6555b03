package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

const testFiscalCode = id.FiscalCode("RSSMRA85T10A562S")

func mustRequest(t *testing.T, fc id.FiscalCode, choice id.Choice) *models.Request {
	t.Helper()
	req, err := models.NewRequest(fc, choice, time.Now())
	require.NoError(t, err)
	return req
}

func TestInMemoryStore_AppendAndFindLastVersion(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	req := mustRequest(t, testFiscalCode, id.ChoiceDownload)
	_, err := s.AppendVersion(ctx, req)
	require.NoError(t, err)

	wip, err := req.WithStatus(id.StatusWIP, time.Now())
	require.NoError(t, err)
	_, err = s.AppendVersion(ctx, wip)
	require.NoError(t, err)

	current, err := s.FindLastVersion(ctx, req.ProcessingID, testFiscalCode)
	require.NoError(t, err)
	assert.Equal(t, id.StatusWIP, current.Status)
	assert.Equal(t, 1, current.Version)
}

func TestInMemoryStore_FindLastVersionMissing(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.FindLastVersion(ctx, "RSSMRA85T10A562S-DOWNLOAD", testFiscalCode)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// A record under another citizen's fiscal code must not leak.
	req := mustRequest(t, testFiscalCode, id.ChoiceDownload)
	_, err = s.AppendVersion(ctx, req)
	require.NoError(t, err)

	_, err = s.FindLastVersion(ctx, req.ProcessingID, id.FiscalCode("VRDGPP90A01H501X"))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_DuplicateVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	req := mustRequest(t, testFiscalCode, id.ChoiceDelete)
	_, err := s.AppendVersion(ctx, req)
	require.NoError(t, err)

	// A concurrent writer racing to the same version loses.
	_, err = s.AppendVersion(ctx, req)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_FindAllFailedReturnsCurrentVersionsOnly(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	now := time.Now()

	// One record that failed and stayed failed.
	failed := mustRequest(t, testFiscalCode, id.ChoiceDownload)
	_, err := s.AppendVersion(ctx, failed)
	require.NoError(t, err)
	failedWIP, err := failed.WithStatus(id.StatusWIP, now)
	require.NoError(t, err)
	_, err = s.AppendVersion(ctx, failedWIP)
	require.NoError(t, err)
	failedFinal, err := failedWIP.WithFailure(models.FailureDescriptor{Activity: "DownloadActivity", Reason: "boom"}, now)
	require.NoError(t, err)
	_, err = s.AppendVersion(ctx, failedFinal)
	require.NoError(t, err)

	// One record that failed and was later recovered: not a candidate.
	recovered := mustRequest(t, id.FiscalCode("VRDGPP90A01H501X"), id.ChoiceDelete)
	_, err = s.AppendVersion(ctx, recovered)
	require.NoError(t, err)
	recoveredWIP, err := recovered.WithStatus(id.StatusWIP, now)
	require.NoError(t, err)
	_, err = s.AppendVersion(ctx, recoveredWIP)
	require.NoError(t, err)
	recoveredFailed, err := recoveredWIP.WithStatus(id.StatusFailed, now)
	require.NoError(t, err)
	_, err = s.AppendVersion(ctx, recoveredFailed)
	require.NoError(t, err)
	recoveredClosed, err := recoveredFailed.WithStatus(id.StatusClosed, now)
	require.NoError(t, err)
	_, err = s.AppendVersion(ctx, recoveredClosed)
	require.NoError(t, err)

	got, err := s.FindAllFailed(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, failed.ProcessingID, got[0].ProcessingID)
	assert.Equal(t, id.StatusFailed, got[0].Status)
	assert.Equal(t, 2, got[0].Version)
}
