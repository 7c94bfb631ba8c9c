package content

import (
	"context"
	"fmt"
	"strings"

	"bits-gateway/internal/config"
	"bits-gateway/internal/payment"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type TokenStore interface {
	GetContentToken(ctx context.Context, lineID int64) (uuid.UUID, error)
	CreateContentToken(ctx context.Context, lineID int64) (uuid.UUID, error)
}

// Issuer builds download links for digital order lines. Serving the files is
// done elsewhere.
type Issuer struct {
	publicURL string
	store     TokenStore
}

func NewIssuer(cfg config.Content, store TokenStore) *Issuer {
	return &Issuer{publicURL: strings.TrimRight(cfg.PublicURL, "/"), store: store}
}

// DownloadURL returns the link for the line's content token. ok is false when
// no token has been issued for the line.
func (i *Issuer) DownloadURL(ctx context.Context, lineID int64) (string, bool, error) {
	token, err := i.store.GetContentToken(ctx, lineID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "get content token")
	}
	return i.url(token), true, nil
}

// Issue returns the line's download link, creating its token when needed.
func (i *Issuer) Issue(ctx context.Context, lineID int64) (string, error) {
	token, err := i.store.CreateContentToken(ctx, lineID)
	if err != nil {
		return "", err
	}
	return i.url(token), nil
}

func (i *Issuer) url(token uuid.UUID) string {
	return fmt.Sprintf("%s/digital/%s/", i.publicURL, token)
}
