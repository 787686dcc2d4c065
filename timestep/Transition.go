package timestep

import "fmt"

// Transition is a single (s, a, r, s', terminal) tuple of experience
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Terminal  bool
}

// NewTransition creates a new Transition from two consecutive
// TimeSteps and the action taken between them.
func NewTransition(prev TimeStep, action int, next TimeStep) Transition {
	return Transition{
		State:     prev.State(),
		Action:    action,
		Reward:    next.Reward,
		NextState: next.State(),
		Terminal:  next.Last(),
	}
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | Action: %v  |  Reward: %.2f  |  "+
		"Terminal: %v", t.Action, t.Reward, t.Terminal)
}
