// Package activities holds the side-effecting work the processing saga
// performs: assembling the export bundle for a download request and purging
// data for a delete request.
package activities

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pagopa/io-functions-admin-sub002/internal/notification"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/blob"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/requestcontext"
)

// Collector extracts one slice of a citizen's data for the export bundle.
type Collector interface {
	Name() string
	Collect(ctx context.Context, fiscalCode id.FiscalCode) (json.RawMessage, error)
}

const (
	passwordLength  = 18
	passwordCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
)

// BundleBlobID is the deterministic blob id of a citizen's export bundle.
// Deterministic so a retried activity overwrites its own previous attempt
// instead of leaking orphan blobs.
func BundleBlobID(fiscalCode id.FiscalCode) string {
	return "bundle/" + fiscalCode.String() + ".json"
}

// BundleMetaBlobID is the sidecar blob holding the bundle metadata,
// including the bcrypt hash of the one-time password.
func BundleMetaBlobID(fiscalCode id.FiscalCode) string {
	return "bundle/" + fiscalCode.String() + ".meta.json"
}

type bundleMeta struct {
	FiscalCode   string `json:"fiscal_code"`
	BundleBlobID string `json:"bundle_blob_id"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    string `json:"created_at"`
}

// Downloader assembles a citizen's data export: every collector contributes
// a section, the bundle lands in blob storage behind a one-time password,
// and the citizen is notified with the retrieval link and the password. Only
// the bcrypt hash of the password is persisted.
type Downloader struct {
	collectors []Collector
	blobs      blob.Store
	publisher  notification.Publisher
	baseURL    string
	bcryptCost int
	logger     *slog.Logger
}

type DownloaderOption func(*Downloader)

func WithDownloaderLogger(logger *slog.Logger) DownloaderOption {
	return func(d *Downloader) { d.logger = logger }
}

// WithBcryptCost overrides the hash cost. Tests lower it.
func WithBcryptCost(cost int) DownloaderOption {
	return func(d *Downloader) { d.bcryptCost = cost }
}

func NewDownloader(collectors []Collector, blobs blob.Store, publisher notification.Publisher, baseURL string, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		collectors: collectors,
		blobs:      blobs,
		publisher:  publisher,
		baseURL:    baseURL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Downloader) Run(ctx context.Context, fiscalCode id.FiscalCode) error {
	bundle := make(map[string]json.RawMessage, len(d.collectors))
	for _, collector := range d.collectors {
		section, err := collector.Collect(ctx, fiscalCode)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable,
				fmt.Sprintf("collect %s", collector.Name()))
		}
		bundle[collector.Name()] = section
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode bundle")
	}
	if err := d.blobs.Put(ctx, BundleBlobID(fiscalCode), data, ""); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store bundle")
	}

	password, err := generatePassword()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.bcryptCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	meta, err := json.Marshal(bundleMeta{
		FiscalCode:   fiscalCode.String(),
		BundleBlobID: BundleBlobID(fiscalCode),
		PasswordHash: string(hash),
		CreatedAt:    requestcontext.Now(ctx).UTC().Format(time.RFC3339),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode bundle metadata")
	}
	if err := d.blobs.Put(ctx, BundleMetaBlobID(fiscalCode), meta, ""); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store bundle metadata")
	}

	msg := notification.Message{
		FiscalCode: fiscalCode,
		BundleURL:  d.baseURL + "/" + BundleBlobID(fiscalCode),
		Password:   password,
	}
	if err := d.publisher.Publish(ctx, msg); err != nil {
		return err
	}

	d.logger.Info("export bundle ready",
		"fiscal_code", fiscalCode, "sections", len(bundle))
	return nil
}

func generatePassword() (string, error) {
	out := make([]byte, passwordLength)
	charsetLen := big.NewInt(int64(len(passwordCharset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}
