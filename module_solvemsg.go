package main

import (
	"math/rand"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/horgh/catbox-modules/internal/solvemsg"
	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// solveModule requires users to solve a basic maths problem before messaging
// others.
type solveModule struct {
	cb   *Catbox
	gate *solvemsg.Gate
}

func newSolveModule(cb *Catbox, r *rand.Rand) *solveModule {
	return &solveModule{
		cb:   cb,
		gate: solvemsg.NewGate(r),
	}
}

func (m *solveModule) Name() string {
	return "solvemsg"
}

func (m *solveModule) Items() []ext.Item {
	return []ext.Item{m.gate.Item()}
}

func (m *solveModule) OnUserPostInit(u *LocalUser) {
	m.gate.OnUserPostInit(u)
}

func (m *solveModule) OnUserPreMessage(source *LocalUser, target *User) bool {
	if m.gate.OnUserPreMessage(source, target.isService()) == solvemsg.Allow {
		return true
	}

	m.cb.Metrics.GateBlocked.Inc()
	return false
}

func (m *solveModule) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"SOLVE": m.solveCommand,
	}
}

// SOLVE <answer>
func (m *solveModule) solveCommand(u *LocalUser, msg irc.Message) {
	if len(msg.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.messageFromServer("461", []string{"SOLVE", "Not enough parameters"})
		return
	}

	err := m.gate.Solve(u, msg.Params[0])
	m.cb.Metrics.SolveAttempts.WithLabelValues(solveResult(err)).Inc()
}

// solveResult labels the outcome of a SOLVE for metrics.
func solveResult(err error) string {
	switch {
	case err == nil:
		return "correct"
	case errors.Is(err, solvemsg.ErrExempt):
		return "exempt"
	case errors.Is(err, solvemsg.ErrAlreadySolved):
		return "solved"
	case errors.Is(err, solvemsg.ErrWrongAnswer):
		return "wrong"
	default:
		return "error"
	}
}
