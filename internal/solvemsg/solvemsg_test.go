package solvemsg

import (
	"math/rand"
	"testing"

	"github.com/horgh/catbox-modules/internal/ext"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUser struct {
	ext     ext.Extensible
	exempt  bool
	notices []string
	penalty int
}

func (u *fakeUser) Extensions() *ext.Extensible { return &u.ext }
func (u *fakeUser) IsExempt() bool              { return u.exempt }
func (u *fakeUser) Notice(s string)             { u.notices = append(u.notices, s) }
func (u *fakeUser) AddPenalty(n int)            { u.penalty += n }

func newGate() *Gate {
	return NewGate(rand.New(rand.NewSource(1)))
}

// challenged makes a user with a known problem.
func challenged(g *Gate, first, second int) *fakeUser {
	u := &fakeUser{}
	g.item.Set(&u.ext, &Problem{First: first, Second: second})
	return u
}

func TestOnUserPostInit(t *testing.T) {
	g := newGate()

	for i := 0; i < 1000; i++ {
		u := &fakeUser{}
		g.OnUserPostInit(u)

		p := g.Problem(u)
		require.NotNil(t, p)
		assert.False(t, p.Warned)
		assert.True(t, p.First >= 0 && p.First <= 9, "first = %d", p.First)
		assert.True(t, p.Second >= 0 && p.Second <= 9, "second = %d", p.Second)
	}
}

func TestOnUserPostInitDeterministic(t *testing.T) {
	a := NewGate(rand.New(rand.NewSource(42)))
	b := NewGate(rand.New(rand.NewSource(42)))

	ua := &fakeUser{}
	ub := &fakeUser{}
	a.OnUserPostInit(ua)
	b.OnUserPostInit(ub)

	assert.Equal(t, *a.Problem(ua), *b.Problem(ub))
}

func TestOnUserPostInitExempt(t *testing.T) {
	g := newGate()
	u := &fakeUser{exempt: true}

	g.OnUserPostInit(u)

	assert.Nil(t, g.Problem(u))
	assert.Equal(t, 0, u.ext.Len())
}

func TestWarnedOnce(t *testing.T) {
	g := newGate()
	u := challenged(g, 3, 4)

	assert.Equal(t, Deny, g.OnUserPreMessage(u, false))
	require.Len(t, u.notices, 1)
	assert.Contains(t, u.notices[0], "What is 3 + 4?")
	assert.True(t, g.Problem(u).Warned)

	for i := 0; i < 5; i++ {
		assert.Equal(t, Deny, g.OnUserPreMessage(u, false))
	}
	assert.Len(t, u.notices, 1, "no further notices once warned")
}

func TestMessagesAllowed(t *testing.T) {
	g := newGate()

	exempt := &fakeUser{exempt: true}
	assert.Equal(t, Allow, g.OnUserPreMessage(exempt, false))

	unchallenged := &fakeUser{}
	assert.Equal(t, Allow, g.OnUserPreMessage(unchallenged, false))

	u := challenged(g, 1, 1)
	assert.Equal(t, Allow, g.OnUserPreMessage(u, true), "services are reachable")
	assert.False(t, g.Problem(u).Warned)
	assert.Empty(t, u.notices)
}

func TestSolve(t *testing.T) {
	tests := []struct {
		answer  string
		err     error
		penalty int
		solved  bool
	}{
		{"7", nil, 0, true},
		{" 7 ", nil, 0, true},
		{"6", ErrWrongAnswer, PenaltyCost, false},
		{"-7", ErrWrongAnswer, PenaltyCost, false},
		{"seven", ErrWrongAnswer, PenaltyCost, false},
		{"", ErrWrongAnswer, PenaltyCost, false},
	}

	g := newGate()

	for _, test := range tests {
		u := challenged(g, 3, 4)
		g.Problem(u).Warned = true

		err := g.Solve(u, test.answer)
		if !errors.Is(err, test.err) && err != test.err {
			t.Errorf("Solve(%q) = %v, wanted %v", test.answer, err, test.err)
			continue
		}

		if u.penalty != test.penalty {
			t.Errorf("Solve(%q) penalty = %d, wanted %d", test.answer, u.penalty,
				test.penalty)
		}

		if len(u.notices) != 1 {
			t.Errorf("Solve(%q) sent %d notices, wanted 1", test.answer,
				len(u.notices))
		}

		if test.solved {
			if g.Problem(u) != nil {
				t.Errorf("Solve(%q) left problem in place", test.answer)
			}
			continue
		}

		p := g.Problem(u)
		if p == nil || *p != (Problem{First: 3, Second: 4, Warned: true}) {
			t.Errorf("Solve(%q) changed problem to %+v", test.answer, p)
		}
	}
}

func TestSolveExempt(t *testing.T) {
	g := newGate()
	u := &fakeUser{exempt: true}

	err := g.Solve(u, "1")
	assert.True(t, errors.Is(err, ErrExempt))
	assert.Equal(t, []string{"*** You do not need to solve a problem!"}, u.notices)
	assert.Equal(t, 0, u.penalty)
}

func TestSolveTwice(t *testing.T) {
	g := newGate()
	u := challenged(g, 2, 2)

	require.NoError(t, g.Solve(u, "4"))

	for _, answer := range []string{"4", "5", "x"} {
		err := g.Solve(u, answer)
		assert.True(t, errors.Is(err, ErrAlreadySolved), "%s: %v", answer, err)
	}
	assert.Equal(t, 0, u.penalty)
}

func TestChallengeFlow(t *testing.T) {
	g := newGate()
	u := challenged(g, 3, 4)

	// First message: blocked with a notice.
	assert.Equal(t, Deny, g.OnUserPreMessage(u, false))
	assert.Len(t, u.notices, 1)
	assert.True(t, g.Problem(u).Warned)

	// Retry: blocked silently.
	assert.Equal(t, Deny, g.OnUserPreMessage(u, false))
	assert.Len(t, u.notices, 1)

	// Wrong answer.
	assert.True(t, errors.Is(g.Solve(u, "6"), ErrWrongAnswer))
	assert.Equal(t, PenaltyCost, u.penalty)
	assert.Equal(t, Problem{First: 3, Second: 4, Warned: true}, *g.Problem(u))

	// Right answer.
	assert.NoError(t, g.Solve(u, "7"))
	assert.Nil(t, g.Problem(u))
	assert.Equal(t, PenaltyCost, u.penalty)

	assert.Equal(t, Allow, g.OnUserPreMessage(u, false))
}
