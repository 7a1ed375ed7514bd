package lifecycle

import "context"

// Phase orders shutdown. Hooks of one phase run together; the next phase
// starts once they have all returned.
type Phase int

const (
	// PhaseIngress stops what produces work: the poller and the bot.
	PhaseIngress Phase = iota
	// PhaseWorkers drains background workers.
	PhaseWorkers
	// PhaseStorage closes shared connections last.
	PhaseStorage
)

func (p Phase) String() string {
	switch p {
	case PhaseIngress:
		return "ingress"
	case PhaseWorkers:
		return "workers"
	case PhaseStorage:
		return "storage"
	default:
		return "unknown"
	}
}

type Hook struct {
	Name  string
	Phase Phase
	Fn    func(ctx context.Context) error
}
