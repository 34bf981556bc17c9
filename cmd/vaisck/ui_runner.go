package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"vais/internal/driver"
	"vais/internal/ui"
)

type checkOutcome struct {
	results []*driver.ModuleResult
	err     error
}

// runCheckWithUI runs the checker in the background while the progress
// model renders its events.
func runCheckWithUI(ctx context.Context, c *driver.Checker, paths []string) ([]*driver.ModuleResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan checkOutcome, 1)

	go func() {
		cc := *c
		cc.Sink = driver.ChannelSink{Ch: events}
		res, err := cc.CheckFiles(ctx, paths)
		outcomeCh <- checkOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel("checking", paths, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout), tea.WithContext(ctx))
	_, uiErr := program.Run()
	// UI мог выйти раньше (Ctrl+C): отменяем проверку и не блокируем отправителя
	cancel()
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
