package activities

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pagopa/io-functions-admin-sub002/internal/notification"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/blob"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
)

const testFiscalCode = id.FiscalCode("RSSMRA85T10A562S")

type staticCollector struct {
	name string
	data string
	err  error
}

func (c staticCollector) Name() string { return c.name }

func (c staticCollector) Collect(context.Context, id.FiscalCode) (json.RawMessage, error) {
	if c.err != nil {
		return nil, c.err
	}
	return json.RawMessage(c.data), nil
}

func TestDownloader_BuildsBundleAndNotifies(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewInMemoryStore()
	publisher := notification.NewInMemoryPublisher()

	downloader := NewDownloader(
		[]Collector{
			staticCollector{name: "profile", data: `{"email":"citizen@example.org"}`},
			staticCollector{name: "messages", data: `[{"id":"msg-1"}]`},
		},
		blobs, publisher, "https://download.example.org",
		WithBcryptCost(bcrypt.MinCost),
	)

	require.NoError(t, downloader.Run(ctx, testFiscalCode))

	// The bundle blob holds every collector's section.
	data, ok, err := blobs.Get(ctx, BundleBlobID(testFiscalCode), "")
	require.NoError(t, err)
	require.True(t, ok)
	var bundle map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &bundle))
	assert.Contains(t, bundle, "profile")
	assert.Contains(t, bundle, "messages")

	// The citizen got the link and the password in clear.
	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, testFiscalCode, msgs[0].FiscalCode)
	assert.Equal(t, "https://download.example.org/bundle/RSSMRA85T10A562S.json", msgs[0].BundleURL)
	require.Len(t, msgs[0].Password, 18)

	// Persisted metadata carries only the hash, and the hash matches.
	meta, ok, err := blobs.Get(ctx, BundleMetaBlobID(testFiscalCode), "")
	require.NoError(t, err)
	require.True(t, ok)
	var decoded struct {
		PasswordHash string `json:"password_hash"`
	}
	require.NoError(t, json.Unmarshal(meta, &decoded))
	assert.NotContains(t, string(meta), msgs[0].Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(decoded.PasswordHash), []byte(msgs[0].Password)))
}

func TestDownloader_CollectorFailureIsRetryable(t *testing.T) {
	downloader := NewDownloader(
		[]Collector{staticCollector{name: "profile", err: errors.New("backend down")}},
		blob.NewInMemoryStore(), notification.NewInMemoryPublisher(), "https://download.example.org",
		WithBcryptCost(bcrypt.MinCost),
	)

	err := downloader.Run(context.Background(), testFiscalCode)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

type recordingPurger struct {
	name   string
	err    error
	purged []id.FiscalCode
}

func (p *recordingPurger) Name() string { return p.name }

func (p *recordingPurger) Purge(_ context.Context, fc id.FiscalCode) error {
	if p.err != nil {
		return p.err
	}
	p.purged = append(p.purged, fc)
	return nil
}

func TestDeleter_RunsAllPurgersDespiteFailures(t *testing.T) {
	failing := &recordingPurger{name: "profile", err: errors.New("storage down")}
	healthy := &recordingPurger{name: "messages"}
	deleter := NewDeleter([]Purger{failing, healthy})

	err := deleter.Run(context.Background(), testFiscalCode)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Contains(t, err.Error(), "purge profile")

	// The failure of one purger did not skip the others.
	assert.Equal(t, []id.FiscalCode{testFiscalCode}, healthy.purged)
}

func TestBundlePurger_RemovesBundleAndMeta(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewInMemoryStore()
	require.NoError(t, blobs.Put(ctx, BundleBlobID(testFiscalCode), []byte(`{}`), ""))
	require.NoError(t, blobs.Put(ctx, BundleMetaBlobID(testFiscalCode), []byte(`{}`), ""))

	purger := NewBundlePurger(blobs)
	require.NoError(t, purger.Purge(ctx, testFiscalCode))

	_, ok, err := blobs.Get(ctx, BundleBlobID(testFiscalCode), "")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = blobs.Get(ctx, BundleMetaBlobID(testFiscalCode), "")
	require.NoError(t, err)
	assert.False(t, ok)
}
