package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"bits-gateway/internal/bits"
	"bits-gateway/internal/config"
	"bits-gateway/internal/payment"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://bits.example.com"

type memoryStore struct {
	identities map[int64]*payment.ExternalIdentity
}

func (m *memoryStore) UpsertIdentity(_ context.Context, identity *payment.ExternalIdentity) (*payment.ExternalIdentity, error) {
	identity.ID = identity.UserID
	m.identities[identity.UserID] = identity
	return identity, nil
}

func newService() (*Service, *memoryStore) {
	store := &memoryStore{identities: map[int64]*payment.ExternalIdentity{}}
	cfg := config.Gateway{Active: true, BaseURL: baseURL, APIKey: "service-key", TimeoutMs: 1000}
	return NewService(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestService_Link(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          map[string]any
		expectedID    string
		expectedError error
	}{
		{
			name:       "Stores membership number",
			status:     200,
			body:       map[string]any{"email": "jane@example.com", "membershipNumber": "M-1001"},
			expectedID: "M-1001",
		},
		{
			name:          "Profile without membership",
			status:        200,
			body:          map[string]any{"email": "jane@example.com"},
			expectedError: ErrNoMembership,
		},
		{
			name:          "Rejected token",
			status:        401,
			body:          map[string]any{"message": "invalid token"},
			expectedError: &bits.RequestError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()

			gock.New(baseURL).
				Get("/api/v1/me").
				MatchHeader("Authorization", "^user-token$").
				Reply(tt.status).
				JSON(tt.body)

			sut, store := newService()
			identity, err := sut.Link(context.Background(), 7, "user-token")

			switch expected := tt.expectedError.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.expectedID, identity.ExternalID)
				assert.Equal(t, "jane@example.com", store.identities[7].Response["email"])
			case *bits.RequestError:
				assert.ErrorAs(t, err, &expected)
				assert.Empty(t, store.identities)
			default:
				assert.ErrorIs(t, err, expected)
				assert.Empty(t, store.identities)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func TestService_LinkWithoutToken(t *testing.T) {
	sut, _ := newService()

	_, err := sut.Link(context.Background(), 7, "")
	assert.ErrorIs(t, err, bits.ErrMissingCredentials)
}
