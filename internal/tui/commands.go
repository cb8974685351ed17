package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JohnDeved/rombrowse/internal/dispatch"
	"github.com/JohnDeved/rombrowse/internal/navigator"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdOpen
	cmdSelect
	cmdUp
	cmdPage
	cmdNextPage
	cmdPrevPage
	cmdPageSize
	cmdToggle
	cmdExclude
	cmdUnexclude
	cmdSearch
	cmdClearSearch
	cmdDataset
	cmdRecent
	cmdGoto
	cmdRun
	cmdRefresh
	cmdHelp
	cmdQuit
)

// command is one parsed prompt line.
type command struct {
	kind    commandKind
	numbers []int
	action  dispatch.Action
	n       int
	arg     string
}

// parseCommand reads a prompt line:
//
//	4            open entry 4 (directory) or show its URL (file)
//	2:5 q        apply an action (p c h q d) to a selection
//	p 4 / n / b  go to page 4, next page, previous page
//	..           go up
//	size 100     set the page size
//	toggle DLC   flip a category filter
//	x Beta       add an exclusion rule; ux Beta removes it
//	/text        search; a bare / clears the search
//	ds No-Intro  switch dataset
//	recent [n]   list recent directories or jump to one
//	go path      open a path in the current dataset
//	run          process the download queue
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	if strings.HasPrefix(line, "/") {
		q := strings.TrimSpace(line[1:])
		if q == "" {
			return command{kind: cmdClearSearch}, nil
		}
		return command{kind: cmdSearch, arg: q}, nil
	}
	if line == ".." {
		return command{kind: cmdUp}, nil
	}

	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	if navigator.LooksLikeSelection(head) {
		return parseSelection(head, rest)
	}

	switch strings.ToLower(head) {
	case "p", "page":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return command{}, fmt.Errorf("usage: p <page>")
		}
		return command{kind: cmdPage, n: n}, nil
	case "n", "next":
		return command{kind: cmdNextPage}, nil
	case "b", "prev":
		return command{kind: cmdPrevPage}, nil
	case "u", "up":
		return command{kind: cmdUp}, nil
	case "size":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return command{}, fmt.Errorf("usage: size <entries per page>")
		}
		return command{kind: cmdPageSize, n: n}, nil
	case "t", "toggle":
		if rest == "" {
			return command{}, fmt.Errorf("usage: toggle <category>")
		}
		return command{kind: cmdToggle, arg: rest}, nil
	case "x":
		if rest == "" {
			return command{}, fmt.Errorf("usage: x <text>")
		}
		return command{kind: cmdExclude, arg: rest}, nil
	case "ux":
		if rest == "" {
			return command{}, fmt.Errorf("usage: ux <text>")
		}
		return command{kind: cmdUnexclude, arg: rest}, nil
	case "ds", "dataset":
		if rest == "" {
			return command{}, fmt.Errorf("usage: ds <dataset>")
		}
		return command{kind: cmdDataset, arg: rest}, nil
	case "recent":
		if rest == "" {
			return command{kind: cmdRecent}, nil
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("usage: recent [n]")
		}
		return command{kind: cmdRecent, n: n}, nil
	case "go", "cd":
		return command{kind: cmdGoto, arg: rest}, nil
	case "run":
		return command{kind: cmdRun}, nil
	case "r", "refresh":
		return command{kind: cmdRefresh}, nil
	case "?", "help":
		return command{kind: cmdHelp}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (? for help)", head)
}

func parseSelection(expr, rest string) (command, error) {
	// "1, 3 d" splits at the first space; fold trailing number groups back in.
	fields := strings.Fields(rest)
	for len(fields) > 0 && navigator.LooksLikeSelection(fields[0]) {
		expr += " " + fields[0]
		fields = fields[1:]
	}
	numbers, err := navigator.ParseIndices(expr)
	if err != nil {
		return command{}, err
	}
	if len(fields) == 0 {
		if len(numbers) == 1 {
			return command{kind: cmdOpen, numbers: numbers}, nil
		}
		return command{}, fmt.Errorf("add an action after the selection: p c h q d")
	}
	if len(fields) > 1 {
		return command{}, fmt.Errorf("unexpected %q after action", strings.Join(fields[1:], " "))
	}
	action, err := dispatch.ParseAction(fields[0])
	if err != nil {
		return command{}, err
	}
	return command{kind: cmdSelect, numbers: numbers, action: action}, nil
}
