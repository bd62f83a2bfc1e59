package cmd

import "time"

type Config struct {
	HTTPPort   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	// WSTokenSecret signs websocket session tokens.
	WSTokenSecret string

	// OfferTTL is how long one offer round stays open before expiring.
	OfferTTL time.Duration

	// LocationThrottle is the minimum gap between forwarded location
	// samples per order and source.
	LocationThrottle time.Duration

	// SessionMaxIdle is how long a silent websocket session survives
	// before the sweep job drops it.
	SessionMaxIdle time.Duration

	// TerminalRetention is how long delivered and cancelled orders stay
	// in the in-memory dispatch index.
	TerminalRetention time.Duration
}
