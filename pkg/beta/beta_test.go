package beta

import (
	"testing"
	"time"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/config"
	"github.com/aisu-run/aisu-core/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewService(store, config.BetaConfig{Enabled: true, TokenExpireHours: 72})
}

func TestIssueAndConsume(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Issue("a@x.com")
	require.NoError(t, err)
	assert.Len(t, token, 64)

	assert.NoError(t, svc.Consume(token))
}

func TestConsumeTwiceFails(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Issue("a@x.com")
	require.NoError(t, err)

	require.NoError(t, svc.Consume(token))
	err = svc.Consume(token)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestConsumeUnknownToken(t *testing.T) {
	svc := newTestService(t)

	err := svc.Consume("deadbeef")
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestConsumeExpiredToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Issue("a@x.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(73 * time.Hour) }
	err = svc.Consume(token)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "expired")
}
