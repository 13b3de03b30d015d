package bttree

// Sequence ticks children in order, stopping at the first non-Success
// result. Succeeds only if every child succeeds (standard BT sequence
// semantics).
type Sequence struct {
	Children []Node
}

func (s *Sequence) Tick(bb *Blackboard) (Status, error) {
	for _, c := range s.Children {
		status, err := c.Tick(bb)
		if err != nil {
			return Failure, err
		}
		if status != Success {
			return status, nil
		}
	}
	return Success, nil
}

// Selector (fallback) ticks children in order, stopping at the first
// non-Failure result. Fails only if every child fails.
type Selector struct {
	Children []Node
}

func (s *Selector) Tick(bb *Blackboard) (Status, error) {
	for _, c := range s.Children {
		status, err := c.Tick(bb)
		if err != nil {
			return Failure, err
		}
		if status != Failure {
			return status, nil
		}
	}
	return Failure, nil
}

// Invert flips Success<->Failure; Running passes through unchanged.
type Invert struct {
	Child Node
}

func (n *Invert) Tick(bb *Blackboard) (Status, error) {
	status, err := n.Child.Tick(bb)
	if err != nil {
		return Failure, err
	}
	switch status {
	case Success:
		return Failure, nil
	case Failure:
		return Success, nil
	default:
		return status, nil
	}
}

// Repeat re-runs Child every tick regardless of its result, and itself
// never finishes (always reports Running) unless Child returns Failure,
// which Repeat propagates so a failing loop body can be observed and
// routed to a recovery branch.
type Repeat struct {
	Child Node
}

func (n *Repeat) Tick(bb *Blackboard) (Status, error) {
	status, err := n.Child.Tick(bb)
	if err != nil {
		return Failure, err
	}
	if status == Failure {
		return Failure, nil
	}
	return Running, nil
}
