package ai

import "github.com/ClementNoelRenard/Running-Map-Run-For-Life/game/geo"

// Status is the result of ticking a behavior node.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

// AIContext is what a node sees while one agent is evaluated.
type AIContext struct {
	Agent  *Agent
	Player geo.Coordinate
	Tick   uint64
}

// Node is one behavior tree node.
type Node interface {
	Tick(ctx *AIContext) Status
}

// NodeFunc adapts a function to Node.
type NodeFunc func(ctx *AIContext) Status

func (f NodeFunc) Tick(ctx *AIContext) Status { return f(ctx) }

// Cond succeeds when pred holds.
func Cond(pred func(*AIContext) bool) Node {
	return NodeFunc(func(ctx *AIContext) Status {
		if pred(ctx) {
			return StatusSuccess
		}
		return StatusFailure
	})
}

// Not swaps success and failure. Running passes through.
func Not(n Node) Node {
	return NodeFunc(func(ctx *AIContext) Status {
		switch n.Tick(ctx) {
		case StatusSuccess:
			return StatusFailure
		case StatusFailure:
			return StatusSuccess
		}
		return StatusRunning
	})
}

// Selector returns the first child result that is not a failure.
func Selector(children ...Node) Node {
	return NodeFunc(func(ctx *AIContext) Status {
		for _, c := range children {
			if st := c.Tick(ctx); st != StatusFailure {
				return st
			}
		}
		return StatusFailure
	})
}

// Sequence returns the first child result that is not a success.
func Sequence(children ...Node) Node {
	return NodeFunc(func(ctx *AIContext) Status {
		for _, c := range children {
			if st := c.Tick(ctx); st != StatusSuccess {
				return st
			}
		}
		return StatusSuccess
	})
}

// BehaviorTree is the root of an agent's decision logic.
type BehaviorTree struct {
	Root Node
}

// Tick evaluates the tree once. An empty tree fails.
func (bt *BehaviorTree) Tick(ctx *AIContext) Status {
	if bt == nil || bt.Root == nil {
		return StatusFailure
	}
	return bt.Root.Tick(ctx)
}

// NewMovementTree builds the per-agent movement decision: chasing agents
// run chase, everyone else runs wander.
func NewMovementTree(chase, wander NodeFunc) *BehaviorTree {
	chasing := Cond(func(ctx *AIContext) bool { return ctx.Agent.IsChasing() })
	return &BehaviorTree{Root: Selector(
		Sequence(chasing, chase),
		Sequence(Not(chasing), wander),
	)}
}
