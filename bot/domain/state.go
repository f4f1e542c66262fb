package domain

// SessionState はエージェントセッションのライフサイクル状態です。
//
//	Disconnected → Connecting → Joined → Running ⇄ Rejoining → Terminated
type SessionState uint32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateJoined
	StateRunning
	StateRejoining
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateRunning:
		return "running"
	case StateRejoining:
		return "rejoining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
