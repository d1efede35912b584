package compiler

import (
	"context"
	"sync"

	"github.com/masterchef/catalogcheck/internal/facts"
)

type FakeCall struct {
	Ref   ModuleRef
	Facts facts.Facts
}

// Fake is a scripted Compiler. With Fn unset every compile succeeds with an
// empty catalog.
type Fake struct {
	Fn func(ref ModuleRef, f facts.Facts) (*Catalog, error)

	mu    sync.Mutex
	calls []FakeCall
}

func (c *Fake) Compile(ctx context.Context, ref ModuleRef, f facts.Facts) (*Catalog, error) {
	c.mu.Lock()
	c.calls = append(c.calls, FakeCall{Ref: ref, Facts: f})
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Fn != nil {
		return c.Fn(ref, f)
	}
	return &Catalog{Class: ref.Class, Classes: []string{ref.Class}, FactsDigest: f.Normalize().Digest()}, nil
}

func (c *Fake) Calls() []FakeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FakeCall{}, c.calls...)
}

// FailWhen returns a Fake script that fails with reason whenever pred holds
// for the normalized facts.
func FailWhen(pred func(facts.Facts) bool, reason Reason, message string) func(ModuleRef, facts.Facts) (*Catalog, error) {
	return func(ref ModuleRef, f facts.Facts) (*Catalog, error) {
		n := f.Normalize()
		if pred(n) {
			return nil, &CompileError{Class: ref.Class, Reason: reason, Message: message}
		}
		return &Catalog{Class: ref.Class, Classes: []string{ref.Class}, FactsDigest: n.Digest()}, nil
	}
}
