package driveragent

import (
	"k8s.io/component-base/featuregate"
)

const (
	// LegacyEventAliases routes ride_response_error, ride_response_confirmed and
	// ride_status_update to the same slots as their current names.
	LegacyEventAliases featuregate.Feature = "LegacyEventAliases"

	// CommandOutbox correlates accept, cancel, OTP and chat commands with the server's answers.
	CommandOutbox featuregate.Feature = "CommandOutbox"
)

var defaultFeatureGates = map[featuregate.Feature]featuregate.FeatureSpec{
	LegacyEventAliases: {Default: true, PreRelease: featuregate.Deprecated},
	CommandOutbox:      {Default: false, PreRelease: featuregate.Alpha},
}

// NewFeatureGate returns a mutable gate knowing the driver agent features.
func NewFeatureGate() featuregate.MutableFeatureGate {
	fg := featuregate.NewFeatureGate()
	if err := fg.Add(defaultFeatureGates); err != nil {
		panic(err)
	}
	return fg
}
