// Package portal abstracts the remote agent-portal UI.
//
// The orchestration engine only talks to the Driver interface; the
// concrete implementation (a WebDriver wire client) lives alongside it.
// Every locate operation can fail with ErrNotFound, and every step of the
// engine decides for itself whether that is fatal.
package portal

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a required element could not be located.
var ErrNotFound = errors.New("portal: element not found")

// ErrNoPrompt reports that no confirmation prompt was open.
var ErrNoPrompt = errors.New("portal: no prompt open")

// Locator describes how to find an element.
type Locator struct {
	By    string `yaml:"by"`    // "xpath", "css", "name" or "tag"
	Value string `yaml:"value"`
}

// Element is a handle to one located element.
type Element interface {
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	// Clear empties an input without triggering a page refresh.
	Clear(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Selected(ctx context.Context) (bool, error)
	// FindAll searches within this element's subtree.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
}

// Driver is the capability the engine consumes to act on the remote
// document.
type Driver interface {
	Find(ctx context.Context, loc Locator) (Element, error)
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	// WaitFor polls Find until the element appears or the timeout lapses,
	// in which case it returns ErrNotFound.
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// AcceptPrompt accepts an open confirmation prompt and returns its
	// text, or ErrNoPrompt when none is open.
	AcceptPrompt(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
}
