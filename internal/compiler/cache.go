package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/masterchef/catalogcheck/internal/facts"
)

type cacheEntry struct {
	catalog *Catalog
	err     error
}

// CachedCompiler memoizes compile results, failures included, keyed by class,
// parameters and facts digest. Cached catalogs are shared and must not be
// modified.
type CachedCompiler struct {
	inner   Compiler
	entries *xsync.Map[string, cacheEntry]
}

func Cached(c Compiler) *CachedCompiler {
	return &CachedCompiler{inner: c, entries: xsync.NewMap[string, cacheEntry]()}
}

type freshKey struct{}

// Fresh returns a context under which CachedCompiler neither answers from
// nor records into its memo, so the inner compiler always runs.
func Fresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

// IsFresh reports whether ctx was derived from Fresh.
func IsFresh(ctx context.Context) bool {
	v, _ := ctx.Value(freshKey{}).(bool)
	return v
}

func (c *CachedCompiler) Compile(ctx context.Context, ref ModuleRef, f facts.Facts) (*Catalog, error) {
	if IsFresh(ctx) {
		return c.inner.Compile(ctx, ref, f)
	}
	key := cacheKey(ref, f)
	if e, ok := c.entries.Load(key); ok {
		return e.catalog, e.err
	}
	cat, err := c.inner.Compile(ctx, ref, f)
	if err != nil {
		if _, ok := AsCompileError(err); !ok {
			// Context and transport errors say nothing about the module.
			return nil, err
		}
	}
	e, _ := c.entries.LoadOrStore(key, cacheEntry{catalog: cat, err: err})
	return e.catalog, e.err
}

// Len is the number of memoized results.
func (c *CachedCompiler) Len() int { return c.entries.Size() }

// Reset drops every memoized result, e.g. after the module changed on disk.
func (c *CachedCompiler) Reset() { c.entries.Clear() }

func cacheKey(ref ModuleRef, f facts.Facts) string {
	b, err := json.Marshal(ref.Params)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", ref.Params))
	}
	sum := sha256.Sum256(b)
	return ref.Class + "\x00" + hex.EncodeToString(sum[:]) + "\x00" + f.Normalize().Digest()
}
