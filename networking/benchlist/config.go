package benchlist

import "time"

// Config parameterizes the suspicious-node detector. Defaults match
// spec.md §4.3: a 15-minute sliding window, threshold 32, 30-minute
// ban.
type Config struct {
	// Window bounds how far back an incident counts toward Threshold.
	Window time.Duration
	// Threshold is the number of incidents within Window that promotes
	// a remote to the ban list.
	Threshold int
	// BanDuration is how long a banned remote is rejected at ingress.
	BanDuration time.Duration
}

// DefaultConfig returns spec.md §4.3's defaults.
func DefaultConfig() Config {
	return Config{
		Window:      15 * time.Minute,
		Threshold:   32,
		BanDuration: 30 * time.Minute,
	}
}
