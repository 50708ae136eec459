package directory

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(tok pairing.Token, ttl time.Duration) Record {
	return Record{
		TokenHash:   TokenHash(tok),
		Publisher:   key.NewDevice().Public(),
		DisplayName: "test device",
		Addresses: []netip.AddrPort{
			netip.MustParseAddrPort("192.168.1.10:7133"),
			netip.MustParseAddrPort("203.0.113.4:7133"),
		},
		SessionKey: key.NewSession().Public(),
		CreatedAt:  time.Now(),
		TTL:        ttl,
	}
}

func TestPublishResolveRoundtrip(t *testing.T) {
	d := New(NewMemStore())
	ctx := context.Background()

	tok := pairing.NewToken()
	rec := testRecord(tok, time.Minute)

	require.NoError(t, d.Publish(ctx, tok.Prefix(), rec))

	got, err := d.Resolve(ctx, tok.Prefix())
	require.NoError(t, err)

	assert.Equal(t, rec.TokenHash, got.TokenHash)
	assert.Equal(t, rec.Publisher, got.Publisher)
	assert.Equal(t, rec.DisplayName, got.DisplayName)
	assert.Equal(t, rec.Addresses, got.Addresses)
	assert.Equal(t, rec.SessionKey, got.SessionKey)
}

func TestResolveUnknownPrefix(t *testing.T) {
	d := New(NewMemStore())

	_, err := d.Resolve(context.Background(), pairing.NewToken().Prefix())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishIsIdempotentForOwnToken(t *testing.T) {
	d := New(NewMemStore())
	ctx := context.Background()

	tok := pairing.NewToken()
	rec := testRecord(tok, time.Minute)

	require.NoError(t, d.Publish(ctx, tok.Prefix(), rec))
	require.NoError(t, d.Publish(ctx, tok.Prefix(), rec), "republishing the same token should not collide")
}

func TestPublishCollision(t *testing.T) {
	d := New(NewMemStore())
	ctx := context.Background()

	tok := pairing.NewToken()

	require.NoError(t, d.Publish(ctx, tok.Prefix(), testRecord(tok, time.Minute)))

	// A different token squatting the same prefix.
	other := pairing.NewToken()
	err := d.Publish(ctx, tok.Prefix(), testRecord(other, time.Minute))

	assert.ErrorIs(t, err, ErrCollision)
}

func TestPublishOverLapsedRecord(t *testing.T) {
	d := New(NewMemStore())
	ctx := context.Background()

	tok := pairing.NewToken()

	old := testRecord(tok, time.Minute)
	old.CreatedAt = time.Now().Add(-time.Hour)

	require.NoError(t, d.Publish(ctx, tok.Prefix(), old))

	// The lapsed record does not block a fresh token from taking the slot.
	fresh := pairing.NewToken()
	assert.NoError(t, d.Publish(ctx, tok.Prefix(), testRecord(fresh, time.Minute)))
}

func TestResolveEnforcesRecordWindow(t *testing.T) {
	d := New(NewMemStore())
	ctx := context.Background()

	tok := pairing.NewToken()

	rec := testRecord(tok, time.Minute)
	rec.CreatedAt = time.Now().Add(-time.Hour)

	require.NoError(t, d.Publish(ctx, tok.Prefix(), rec))

	_, err := d.Resolve(ctx, tok.Prefix())
	assert.ErrorIs(t, err, ErrNotFound, "a lapsed record should resolve as absent even if the store still holds it")
}

func TestUnpublishRemovesRecord(t *testing.T) {
	store := NewMemStore()
	d := New(store)
	ctx := context.Background()

	tok := pairing.NewToken()

	require.NoError(t, d.Publish(ctx, tok.Prefix(), testRecord(tok, time.Minute)))
	require.Equal(t, 1, store.Len())

	d.Unpublish(ctx, tok.Prefix())

	assert.Equal(t, 0, store.Len())

	_, err := d.Resolve(ctx, tok.Prefix())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveWrapsStoreFailure(t *testing.T) {
	d := New(&failingStore{})

	_, err := d.Resolve(context.Background(), pairing.NewToken().Prefix())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPublishWrapsStoreFailure(t *testing.T) {
	d := New(&failingStore{})

	tok := pairing.NewToken()
	err := d.Publish(context.Background(), tok.Prefix(), testRecord(tok, time.Minute))

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRecordKeyDomainSeparation(t *testing.T) {
	tok := pairing.NewToken()

	assert.NotEqual(t, RecordKey(tok.Prefix()), TokenHash(tok))
	assert.Len(t, RecordKey(tok.Prefix()), 32)
	assert.Len(t, TokenHash(tok), 32)
}

func TestMemStoreTTLExpiry(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []byte("k"), []byte("v"), time.Millisecond))

	assert.Eventually(t, func() bool {
		_, found, _ := store.Get(ctx, []byte("k"))
		return !found
	}, time.Second, 5*time.Millisecond)
}

type failingStore struct{}

func (f *failingStore) Put(context.Context, []byte, []byte, time.Duration) error {
	return errors.New("store down")
}

func (f *failingStore) Get(context.Context, []byte) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (f *failingStore) Delete(context.Context, []byte) error {
	return errors.New("store down")
}
