package clientdata

import "time"

// TTL constants, added to the current time when storing to calculate expires_at.
const (
	// TTLRecentGames covers a recent-games endpoint payload. Round history
	// moves every ~30s but a ten minute window is enough to ride out outages.
	TTLRecentGames = 10 * time.Minute

	// TTLStale is the oldest cached payload the fallback path will accept.
	TTLStale = 24 * time.Hour
)
