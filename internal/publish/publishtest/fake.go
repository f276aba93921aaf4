// Package publishtest provides an in-memory publisher for tests.
package publishtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

// ErrInjected is returned by a Fake configured to fail.
var ErrInjected = errors.New("injected failure")

// Fake records every call and keeps post bodies so amendments can be checked.
type Fake struct {
	mu sync.Mutex

	target publish.Target
	next   int

	FailCreate   bool
	FailAmend    bool
	FailAnnounce bool
	FailIcon     bool

	Bodies    map[string]string
	Creates   []publish.Content
	Amends    []Amend
	Announced []string
	Icons     []statuspage.Indicator
}

// Amend is one recorded amendment.
type Amend struct {
	ExternalID string
	Text       string
}

// New returns a working fake for the given target.
func New(kind publish.Kind, name string) *Fake {
	return &Fake{target: publish.Target{Kind: kind, Name: name}, Bodies: map[string]string{}}
}

func (f *Fake) Target() publish.Target { return f.target }

func (f *Fake) Create(_ context.Context, c publish.Content) publish.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates = append(f.Creates, c)
	if f.FailCreate {
		return publish.Failed(ErrInjected)
	}
	f.next++
	id := fmt.Sprintf("%s-%d", f.target.Name, f.next)
	f.Bodies[id] = c.Body
	return publish.Result{ExternalID: id, Link: "https://example.test/" + id}
}

func (f *Fake) Amend(_ context.Context, externalID, appended string) publish.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Amends = append(f.Amends, Amend{ExternalID: externalID, Text: appended})
	if f.FailAmend {
		return publish.Failed(ErrInjected)
	}
	body, ok := f.Bodies[externalID]
	if !ok {
		return publish.Failed(fmt.Errorf("unknown post %s", externalID))
	}
	f.Bodies[externalID] = body + appended
	return publish.Result{ExternalID: externalID, Link: "https://example.test/" + externalID}
}

func (f *Fake) Announce(_ context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Announced = append(f.Announced, externalID)
	if f.FailAnnounce {
		return ErrInjected
	}
	return nil
}

func (f *Fake) SetIcon(_ context.Context, ind statuspage.Indicator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Icons = append(f.Icons, ind)
	if f.FailIcon {
		return ErrInjected
	}
	return nil
}

// Calls counts every publisher-facing call made so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Creates) + len(f.Amends) + len(f.Announced)
}
