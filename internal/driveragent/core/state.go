package core

// State is the lifecycle state of the driver's real-time connection.
type State string

const (
	StateDisconnected     State = "disconnected"
	StateConnecting       State = "connecting"
	StateConnected        State = "connected"
	StateReconnectPending State = "reconnect_pending"
	StateFailed           State = "failed"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// Environment selects the connection tuning profile.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Platform returns the handshake platform string for the environment.
func (e Environment) Platform() string {
	if e == EnvProduction {
		return "android-apk"
	}
	return "dev"
}
