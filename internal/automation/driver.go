package automation

import (
	"context"
	"errors"
)

// ErrActionFailed is returned by drivers when the platform rejects an action
var ErrActionFailed = errors.New("accessibility action failed")

// Driver performs accessibility actions on the foreground app
type Driver interface {
	// Snapshot returns the current root of the UI tree, nil if no window
	Snapshot(ctx context.Context) (Node, error)
	Click(ctx context.Context, n Node) error
	Focus(ctx context.Context, n Node) error
	ClearText(ctx context.Context, n Node) error
	SetText(ctx context.Context, n Node, text string) error
	PerformIme(ctx context.Context, action string) error
	Scroll(ctx context.Context, n Node, dir ScrollDirection) error
}

// Launcher is implemented by drivers that can bring an app to the front
type Launcher interface {
	LaunchApp(ctx context.Context, packageName string) error
}
