package identity

import (
	"context"
	"log/slog"

	"bits-gateway/internal/bits"
	"bits-gateway/internal/config"
	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/payment"
	"github.com/pkg/errors"
)

var ErrNoMembership = errors.New("bits profile has no membership number")

type Store interface {
	UpsertIdentity(ctx context.Context, identity *payment.ExternalIdentity) (*payment.ExternalIdentity, error)
}

// Service links local users to their Bits account so that payments can be
// made on their behalf.
type Service struct {
	cfg    config.Gateway
	store  Store
	logger *slog.Logger
}

func NewService(cfg config.Gateway, store Store, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, store: store, logger: logger}
}

// Link fetches the profile owning accessToken and stores its membership
// number as the user's external id.
func (s *Service) Link(ctx context.Context, userID int64, accessToken string) (*payment.ExternalIdentity, error) {
	ctx = logcontext.AppendCtx(ctx, slog.Int64("userId", userID))

	client, err := bits.NewClient(s.cfg, bits.Credentials{AccessToken: accessToken})
	if err != nil {
		return nil, err
	}

	user, err := client.GetUser(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching Bits profile", "error", err)
		return nil, errors.Wrap(err, "get bits profile")
	}
	if user.MembershipNumber == "" {
		return nil, ErrNoMembership
	}

	identity, err := s.store.UpsertIdentity(ctx, &payment.ExternalIdentity{
		UserID:     userID,
		ExternalID: user.MembershipNumber,
		Response:   user.Raw,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Linked Bits identity", "externalId", identity.ExternalID)
	return identity, nil
}
