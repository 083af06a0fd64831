package spool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchUnsupported is returned by Watch when the spool directory sits on
// a filesystem that cannot deliver reliable change events. Callers fall back
// to pure polling.
var ErrWatchUnsupported = errors.New("spool: directory watch unsupported on this filesystem")

// Subscription delivers coalesced change notifications for a spool
// directory. Events only wake waiters early; polling remains the
// correctness mechanism across the process boundary.
type Subscription struct {
	watcher *fsnotify.Watcher
	events  chan struct{}
	stop    chan struct{}
	once    sync.Once
}

// Watch subscribes to changes in the spool directory.
func (d Dir) Watch() (*Subscription, error) {
	if !notifySupported(d.root) {
		return nil, ErrWatchUnsupported
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating spool watcher: %w", err)
	}
	if err := watcher.Add(d.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", d.root, err)
	}
	sub := &Subscription{
		watcher: watcher,
		events:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

// Events returns the notification channel. It is closed when the
// subscription shuts down.
func (s *Subscription) Events() <-chan struct{} {
	return s.events
}

// Close stops the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.watcher.Close()
	})
}

func (s *Subscription) run() {
	defer close(s.events)
	for {
		select {
		case <-s.stop:
			return
		case _, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.signal()
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.signal()
		}
	}
}

func (s *Subscription) signal() {
	select {
	case s.events <- struct{}{}:
	default:
	}
}
