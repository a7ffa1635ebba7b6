package main

import (
	"testing"

	"github.com/horgh/catbox-modules/internal/solvemsg"
	"github.com/pkg/errors"
)

func TestSolveResult(t *testing.T) {
	tests := []struct {
		input  error
		output string
	}{
		{nil, "correct"},
		{solvemsg.ErrExempt, "exempt"},
		{solvemsg.ErrAlreadySolved, "solved"},
		{solvemsg.ErrWrongAnswer, "wrong"},
		{errors.Wrap(solvemsg.ErrWrongAnswer, "x"), "wrong"},
		{errors.New("something else"), "error"},
	}

	for _, test := range tests {
		if got := solveResult(test.input); got != test.output {
			t.Errorf("solveResult(%v) = %s, wanted %s", test.input, got,
				test.output)
		}
	}
}
