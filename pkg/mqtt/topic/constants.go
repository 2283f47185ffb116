package topic

// MQTT wildcard segments.
const (
	// Wildcard matches exactly one level, e.g. "{root}/driver/D1/down/+".
	Wildcard = "+"

	// MultiWildcard matches the remaining levels and must come last, e.g. "{root}/driver/D1/#".
	MultiWildcard = "#"
)
