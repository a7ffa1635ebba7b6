// Package solvemsg requires users to solve a basic maths problem before they
// may message other users.
//
// Each user gets a problem when they register. The first time they try to
// message someone we tell them the problem. They answer with SOLVE.
package solvemsg

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/pkg/errors"
)

// ItemName is the extension item key problems are stored under.
const ItemName = "solve-message"

// PenaltyCost is the flood penalty for a wrong answer.
const PenaltyCost = 10000

var (
	// ErrExempt means the user has no problem to solve because they are exempt.
	ErrExempt = errors.New("user is exempt")

	// ErrAlreadySolved means the user has no problem to solve (any more).
	ErrAlreadySolved = errors.New("problem already solved")

	// ErrWrongAnswer means the answer was not correct.
	ErrWrongAnswer = errors.New("wrong answer")
)

// Problem is a user's unsolved problem: What is First + Second?
type Problem struct {
	First  int
	Second int

	// Whether we showed the user the problem.
	Warned bool
}

// Answer is the correct answer.
func (p *Problem) Answer() int {
	return p.First + p.Second
}

// User is what we need from a local user.
type User interface {
	// Extensions attached to the user.
	Extensions() *ext.Extensible

	// Whether policy exempts the user.
	IsExempt() bool

	// Send the user a NOTICE.
	Notice(s string)

	// Add to the user's flood penalty.
	AddPenalty(n int)
}

// Verdict decides whether a message goes through.
type Verdict int

const (
	// Allow the message.
	Allow Verdict = iota

	// Deny the message.
	Deny
)

// Gate holds users' problems.
type Gate struct {
	item *ext.SimpleItem[Problem]
	rand *rand.Rand
}

// NewGate creates a Gate. Problems are made using r.
func NewGate(r *rand.Rand) *Gate {
	return &Gate{
		item: ext.NewSimpleItem[Problem](ItemName),
		rand: r,
	}
}

// Item is the extension item problems are stored in.
func (g *Gate) Item() ext.Item {
	return g.item
}

// Problem returns the user's problem, or nil if they have none.
func (g *Gate) Problem(u User) *Problem {
	return g.item.Get(u.Extensions())
}

// OnUserPostInit gives a newly registered user a problem.
func (g *Gate) OnUserPostInit(u User) {
	if u.IsExempt() {
		return
	}

	g.item.Set(u.Extensions(), &Problem{
		First:  g.rand.Intn(10),
		Second: g.rand.Intn(10),
	})
}

// OnUserPreMessage decides if the user may send a private message.
//
// Messages to services always go through.
func (g *Gate) OnUserPreMessage(u User, toService bool) Verdict {
	if u.IsExempt() || toService {
		return Allow
	}

	p := g.item.Get(u.Extensions())
	if p == nil {
		return Allow
	}

	if p.Warned {
		return Deny
	}

	u.Notice(fmt.Sprintf(
		"*** Before you can send messages you must solve the following problem: What is %d + %d? You can enter your answer using /QUOTE SOLVE <answer>",
		p.First, p.Second))
	p.Warned = true
	return Deny
}

// Solve checks the user's answer. If it is correct, their problem goes away.
//
// The user is always told the outcome. A wrong answer costs them
// PenaltyCost.
func (g *Gate) Solve(u User, answer string) error {
	if u.IsExempt() {
		u.Notice("*** You do not need to solve a problem!")
		return ErrExempt
	}

	p := g.item.Get(u.Extensions())
	if p == nil {
		u.Notice("*** You have already solved your problem!")
		return ErrAlreadySolved
	}

	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n != p.Answer() {
		u.Notice(fmt.Sprintf("*** %s is not the correct answer.", answer))
		u.AddPenalty(PenaltyCost)
		return ErrWrongAnswer
	}

	g.item.Unset(u.Extensions())
	u.Notice(fmt.Sprintf("*** %s is the correct answer!", answer))
	return nil
}
