package main

import (
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
	"github.com/elastos/Elastos.ELA.CrossBorrow/engine"
	"github.com/elastos/Elastos.ELA.CrossBorrow/resolver"
)

// Prompter reads answers from the user.
type Prompter interface {
	Prompt(prompt string) (string, error)
	PromptPassword(prompt string) (string, error)
}

// terminalPrompter is a Prompter on the terminal, with line editing.
type terminalPrompter struct {
	state *liner.State
}

func (p *terminalPrompter) Prompt(prompt string) (string, error) {
	return p.state.Prompt(prompt)
}

func (p *terminalPrompter) PromptPassword(prompt string) (string, error) {
	return p.state.PasswordPrompt(prompt)
}

var (
	stdinOnce sync.Once
	stdin     *terminalPrompter
)

// prompter opens the terminal on first use; commands that never ask
// anything leave the terminal mode untouched.
func prompter() Prompter {
	stdinOnce.Do(func() {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		stdin = &terminalPrompter{state: state}
	})
	return stdin
}

func closePrompter() {
	if stdin != nil {
		stdin.state.Close()
	}
}

// askForTag asks for the release tag, def is taken on an empty answer.
func askForTag(p Prompter, def string) (string, error) {
	question := "Release tag: "
	if def != "" {
		question = fmt.Sprintf("Release tag [%s]: ", def)
	}
	answer, err := p.Prompt(question)
	if err != nil {
		return "", err
	}
	if answer = strings.TrimSpace(answer); answer != "" {
		return answer, nil
	}
	if def == "" {
		return "", errors.New("a release tag is required")
	}
	return def, nil
}

func askAmount(p Prompter, question string) (*big.Int, error) {
	answer, err := p.Prompt(question)
	if err != nil {
		return nil, err
	}
	return engine.ParseEther(strings.TrimSpace(answer))
}

// tableChooser lists the candidates and asks which one to use.
func tableChooser(p Prompter, out io.Writer) resolver.Chooser {
	return func(kind string, candidates []domain.Deployment) (int, error) {
		fmt.Fprintf(out, "Several %s deployments match:\n", kind)
		table := tablewriter.NewWriter(out)
		table.SetAutoWrapText(false)
		table.SetHeader([]string{"#", "Name", "Address"})
		for i, c := range candidates {
			table.Append([]string{strconv.Itoa(i), c.Name, c.Address.Hex()})
		}
		table.Render()

		answer, err := p.Prompt(fmt.Sprintf("Choose %s [0-%d]: ", kind, len(candidates)-1))
		if err != nil {
			return 0, err
		}
		idx, err := strconv.Atoi(strings.TrimSpace(answer))
		if err != nil {
			return 0, errors.Errorf("%q is not a choice", answer)
		}
		return idx, nil
	}
}
