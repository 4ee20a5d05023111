package cmd

import (
	"errors"
	"os"

	"github.com/charmbracelet/huh"
)

// errNotInteractive is returned by the prompts when stdin is not a terminal.
var errNotInteractive = errors.New("interactive prompts need a terminal; edit the config file instead")

// runForm runs fields as one form with help hints. ACCESSIBLE=1 switches huh
// to plain line prompts for screen readers.
func runForm(fields ...huh.Field) error {
	if !isTerminal(os.Stdin) {
		return errNotInteractive
	}
	return huh.NewForm(huh.NewGroup(fields...)).
		WithShowHelp(true).
		WithAccessible(os.Getenv("ACCESSIBLE") != "").
		Run()
}

// promptString asks for a line of text. A non-empty defaultVal is shown as
// the placeholder and returned when the user just presses Enter.
func promptString(title, description, defaultVal string) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if defaultVal != "" {
		inp = inp.Placeholder(defaultVal)
	}
	if err := runForm(inp); err != nil {
		return "", err
	}
	if value == "" {
		return defaultVal, nil
	}
	return value, nil
}

// promptPassword asks for a secret without echoing it.
func promptPassword(title, description string) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).EchoMode(huh.EchoModePassword).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if err := runForm(inp); err != nil {
		return "", err
	}
	return value, nil
}

// SelectOption is one choice in a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

func huhOptions[T comparable](options []SelectOption[T], selected func(i int, v T) bool) []huh.Option[T] {
	out := make([]huh.Option[T], len(options))
	for i, opt := range options {
		out[i] = huh.NewOption(opt.Label, opt.Value).Selected(selected(i, opt.Value))
	}
	return out
}

func promptSelect[T comparable](title string, options []SelectOption[T], defaultIdx int) (T, error) {
	var value T
	sel := huh.NewSelect[T]().
		Title(title).
		Options(huhOptions(options, func(i int, _ T) bool { return i == defaultIdx })...).
		Value(&value)
	if err := runForm(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

func promptMultiSelect[T comparable](title, description string, options []SelectOption[T], preselected []T) ([]T, error) {
	pre := make(map[T]bool, len(preselected))
	for _, v := range preselected {
		pre[v] = true
	}
	var values []T
	ms := huh.NewMultiSelect[T]().
		Title(title).
		Options(huhOptions(options, func(_ int, v T) bool { return pre[v] })...).
		Value(&values)
	if description != "" {
		ms = ms.Description(description)
	}
	if err := runForm(ms); err != nil {
		return nil, err
	}
	return values, nil
}

// promptConfirm asks a yes/no question.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&value)
	if err := runForm(c); err != nil {
		return false, err
	}
	return value, nil
}
