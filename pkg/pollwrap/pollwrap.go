/*
Copyright 2025 The slowpoll Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package pollwrap decorates a suspendable computation so that every resume
// is bracketed by a poll timer. The wrapper is transparent: suspend,
// complete and error behavior pass through unchanged; its only side effect
// is the timing bracket.
package pollwrap

import "context"

// Pollable is one unit of asynchronous work. Poll makes progress and
// returns done=false to suspend, done=true on completion. A non-nil error
// also completes the computation.
type Pollable interface {
	Poll(ctx context.Context) (done bool, err error)
}

// PollFunc adapts a function to Pollable.
type PollFunc func(ctx context.Context) (bool, error)

// Poll implements Pollable.
func (f PollFunc) Poll(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Bracket is the narrow timing capability the wrapper needs.
// *polltimer.Timer satisfies it.
type Bracket interface {
	Enter()
	Exit()
}

type timed struct {
	inner Pollable
	b     Bracket
}

// Wrap brackets every Poll of inner with b.Enter/b.Exit. Exit runs on every
// path out of Poll: suspension, completion, error, and unwinding panics.
func Wrap(inner Pollable, b Bracket) Pollable {
	return &timed{inner: inner, b: b}
}

func (t *timed) Poll(ctx context.Context) (bool, error) {
	t.b.Enter()
	defer t.b.Exit()
	return t.inner.Poll(ctx)
}
