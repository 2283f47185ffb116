package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions abstracts the options of a command. Flags are grouped into named
// sets for the help output and unmarshalled from viper by their mapstructure tags.
type NamedFlagSetOptions interface {
	// Flags returns the command flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in derived fields after flags and config are read.
	Complete() error

	// Validate checks the completed options.
	Validate() error
}
