package actors

import "time"

const (
	// DefaultSessionTTL is how long a pairing attempt lives, absent an
	// explicit ttl on code generation.
	DefaultSessionTTL = time.Minute * 2

	// DefaultSweepInterval is how often the registry sweep runs; the sweep
	// is the only place expiry is enforced.
	DefaultSweepInterval = time.Second

	// DefaultGracePeriod keeps terminal sessions registered a while, so
	// late duplicate messages die against a known session instead of a
	// "session not found" ambiguity.
	DefaultGracePeriod = time.Second * 30

	// DefaultRepublishInterval re-publishes live issuer records well inside
	// any sane record ttl, to survive the directory's own expiry.
	DefaultRepublishInterval = time.Second * 15

	// DefaultResolveTimeout bounds how long a consumer keeps retrying a
	// code that resolves to nothing.
	DefaultResolveTimeout = time.Second * 30

	// DefaultEstablishTimeout bounds the whole connection ladder.
	DefaultEstablishTimeout = time.Second * 45

	// DefaultHandshakeTimeout bounds one request/response exchange.
	DefaultHandshakeTimeout = time.Second * 15

	// Inbox
	PairManInboxChLen = 32

	// UpdatesChanBuffer is the notification channel depth; a presentation
	// layer that far behind has bigger problems.
	UpdatesChanBuffer = 16

	resolveBackoffMin = time.Millisecond * 500
	resolveBackoffMax = time.Second * 5

	publishRetryInterval = time.Second * 2

	// tokenDrawAttempts bounds re-drawing tokens whose prefix is already
	// live on this device.
	tokenDrawAttempts = 4
)
