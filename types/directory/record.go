package directory

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/edup2p/pairsok/types"
	"github.com/edup2p/pairsok/types/key"
	"go.mongodb.org/mongo-driver/bson"
)

// Record is one rendezvous entry: everything a consumer needs to find and
// reach the device that published it. It lives in the directory under
// RecordKey(prefix), for at most TTL past CreatedAt.
type Record struct {
	// TokenHash is the hash of the publisher's full token; distinct live
	// tokens whose prefixes collide are detected through it at publish time.
	TokenHash []byte

	Publisher   key.DevicePublic
	DisplayName string

	// Addresses are the publisher's reachability hints, best first.
	Addresses []netip.AddrPort

	// SessionKey is the publisher's ephemeral handshake key for this attempt.
	SessionKey key.SessionPublic

	CreatedAt time.Time
	TTL       time.Duration
}

// Lapsed reports whether the record's validity window has passed at now.
func (r Record) Lapsed(now time.Time) bool {
	return now.After(r.CreatedAt.Add(r.TTL))
}

// recordDoc is the BSON shape of a Record as stored in the directory.
// Key fields are pointers so their BSON value marshallers apply.
type recordDoc struct {
	TokenHash   []byte             `bson:"token_hash"`
	Publisher   *key.DevicePublic  `bson:"publisher"`
	DisplayName string             `bson:"display_name"`
	Addresses   []string           `bson:"addresses"`
	SessionKey  *key.SessionPublic `bson:"session_key"`
	CreatedAt   int64              `bson:"created_at"`
	TTLSeconds  int64              `bson:"ttl_seconds"`
}

// EncodeRecord marshals r into its stored BSON form.
func EncodeRecord(r Record) ([]byte, error) {
	return bson.Marshal(recordDoc{
		TokenHash:   r.TokenHash,
		Publisher:   &r.Publisher,
		DisplayName: r.DisplayName,
		Addresses: types.Map(r.Addresses, func(ap netip.AddrPort) string {
			return ap.String()
		}),
		SessionKey: &r.SessionKey,
		CreatedAt:  r.CreatedAt.Unix(),
		TTLSeconds: int64(r.TTL / time.Second),
	})
}

// DecodeRecord unmarshals a stored BSON value back into a Record.
func DecodeRecord(b []byte) (Record, error) {
	var doc recordDoc
	if err := bson.Unmarshal(b, &doc); err != nil {
		return Record{}, fmt.Errorf("could not decode rendezvous record: %w", err)
	}

	addrs := make([]netip.AddrPort, 0, len(doc.Addresses))
	for _, s := range doc.Addresses {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return Record{}, fmt.Errorf("could not decode rendezvous address %q: %w", s, err)
		}
		addrs = append(addrs, types.NormaliseAddrPort(ap))
	}

	rec := Record{
		TokenHash:   doc.TokenHash,
		DisplayName: doc.DisplayName,
		Addresses:   addrs,
		CreatedAt:   time.Unix(doc.CreatedAt, 0),
		TTL:         time.Duration(doc.TTLSeconds) * time.Second,
	}

	if doc.Publisher != nil {
		rec.Publisher = *doc.Publisher
	}
	if doc.SessionKey != nil {
		rec.SessionKey = *doc.SessionKey
	}

	return rec, nil
}
