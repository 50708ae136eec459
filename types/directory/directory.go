// Package directory is a thin adapter over an external key/value directory
// (a DHT, or anything shaped like one): it publishes "I am reachable, here
// is how" records keyed by a hash of a session token's prefix, and resolves
// such records for a given prefix.
//
// The directory itself is best-effort and eventually consistent; every
// operation here is a single bounded attempt, and retry cadence belongs to
// the caller (the pairing manager).
package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edup2p/pairsok/types/pairing"
	"golang.org/x/crypto/blake2s"
)

const DefaultQueryTimeout = time.Second * 5

var (
	// ErrUnavailable means the backing store could not serve the request;
	// transient, retry with backoff.
	ErrUnavailable = errors.New("directory unavailable")

	// ErrNotFound means no live record exists under the queried prefix.
	ErrNotFound = errors.New("record not found")

	// ErrCollision means a live record from a different token already holds
	// this prefix's slot; the publisher should retry with a fresh token.
	ErrCollision = errors.New("prefix already published by another token")
)

// Record key and token hash derivations are domain-separated so a directory
// key can never be confused for a token hash.
var (
	recordKeySalt = []byte("pairsok rendezvous key v1")
	tokenHashSalt = []byte("pairsok token hash v1")
)

// RecordKey derives the directory key a prefix's record is stored under.
func RecordKey(p pairing.Prefix) []byte {
	sum := blake2s.Sum256(bytes.Join([][]byte{recordKeySalt, p[:]}, nil))
	return sum[:]
}

// TokenHash derives the collision-detection hash of a full token.
func TokenHash(t pairing.Token) []byte {
	sum := blake2s.Sum256(bytes.Join([][]byte{tokenHashSalt, t[:]}, nil))
	return sum[:]
}

// Store is the contract the external directory has to fulfill.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores value under key for at most ttl.
	Put(ctx context.Context, key, value []byte, ttl time.Duration) error

	// Get returns the value under key, and whether one was present.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)

	// Delete removes the value under key, best-effort.
	Delete(ctx context.Context, key []byte) error
}

type Directory struct {
	store Store

	queryTimeout time.Duration
}

func New(store Store) *Directory {
	return &Directory{
		store:        store,
		queryTimeout: DefaultQueryTimeout,
	}
}

func NewWithTimeout(store Store, queryTimeout time.Duration) *Directory {
	d := New(store)
	d.queryTimeout = queryTimeout
	return d
}

// Publish stores rec under prefix's record key. It is idempotent for the
// record's own token, and fails with ErrCollision when a live record from
// a different token already occupies the slot.
func (d *Directory) Publish(ctx context.Context, prefix pairing.Prefix, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	dirKey := RecordKey(prefix)

	if existing, found, err := d.store.Get(ctx, dirKey); err == nil && found {
		if cur, err := DecodeRecord(existing); err == nil &&
			!cur.Lapsed(time.Now()) &&
			!bytes.Equal(cur.TokenHash, rec.TokenHash) {
			return ErrCollision
		}
	}

	val, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	if err := d.store.Put(ctx, dirKey, val, rec.TTL); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return nil
}

// Resolve looks up the live record under prefix; a single bounded query.
func (d *Directory) Resolve(ctx context.Context, prefix pairing.Prefix) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	val, found, err := d.store.Get(ctx, RecordKey(prefix))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !found {
		return Record{}, ErrNotFound
	}

	rec, err := DecodeRecord(val)
	if err != nil {
		return Record{}, err
	}

	// The store's own expiry is advisory; enforce the record's window here.
	if rec.Lapsed(time.Now()) {
		return Record{}, ErrNotFound
	}

	return rec, nil
}

// Unpublish removes the record under prefix, best-effort; absence of
// confirmation is not an error, the record's TTL cleans up regardless.
func (d *Directory) Unpublish(ctx context.Context, prefix pairing.Prefix) {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	if err := d.store.Delete(ctx, RecordKey(prefix)); err != nil {
		slog.Debug("unpublish failed, leaving record to its ttl", "prefix", prefix.Debug(), "err", err)
	}
}
