// Package ops holds the values that flow through the file-operation engine:
// the requested Operation, resolved Paths, progress events and the Result.
package ops

import (
	"net/url"
	"strings"
)

// Kind names an operation variant
type Kind string

const (
	KindInstall Kind = "install"
	KindDelete  Kind = "delete"
	KindMove    Kind = "move"
)

// Operation is one user-requested action. The set of implementations is closed:
// Install, Delete and Move.
type Operation interface {
	Kind() Kind
	// Validate re-checks construction invariants (non-blank paths, usable URL)
	Validate() error
	isOperation()
}

// Install fetches Source and writes it to Destination
type Install struct {
	Destination string
	Source      string
}

// Delete removes Target, recursively when it is a directory
type Delete struct {
	Target string
}

// Move renames Source to Destination. Force allows replacing an existing destination.
type Move struct {
	Source      string
	Destination string
	Force       bool
}

func (Install) Kind() Kind { return KindInstall }
func (Delete) Kind() Kind  { return KindDelete }
func (Move) Kind() Kind    { return KindMove }

func (Install) isOperation() {}
func (Delete) isOperation()  {}
func (Move) isOperation()    {}

func (o Install) Validate() error {
	if blank(o.Destination) {
		return Errorf(InvalidPath, KindInstall, o.Destination, "destination path is empty")
	}
	if blank(o.Source) {
		return Errorf(InvalidPath, KindInstall, o.Destination, "source url is empty")
	}
	u, err := url.Parse(strings.TrimSpace(o.Source))
	if err != nil {
		return Wrap(NetworkError, KindInstall, o.Destination, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Errorf(NetworkError, KindInstall, o.Destination, "unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Errorf(NetworkError, KindInstall, o.Destination, "url %q has no host", o.Source)
	}
	return nil
}

func (o Delete) Validate() error {
	if blank(o.Target) {
		return Errorf(InvalidPath, KindDelete, o.Target, "target path is empty")
	}
	return nil
}

func (o Move) Validate() error {
	if blank(o.Source) {
		return Errorf(InvalidPath, KindMove, o.Source, "source path is empty")
	}
	if blank(o.Destination) {
		return Errorf(InvalidPath, KindMove, o.Destination, "destination path is empty")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
