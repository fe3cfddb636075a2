// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"errors"
	"sync"
	"testing"

	"go.astrophena.name/scriptbot/internal/testutil"
)

func TestProtected(t *testing.T) {
	t.Parallel()

	t.Run("read access", func(t *testing.T) {
		p := Protect(42)
		var result int
		p.RAccess(func(val int) { result = val })
		testutil.AssertEqual(t, result, 42)
	})

	t.Run("concurrent map access", func(t *testing.T) {
		p := Protect(make(map[string]int))
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Access(func(m map[string]int) { m["n"]++ })
			}()
		}
		wg.Wait()

		var result int
		p.RAccess(func(m map[string]int) { result = m["n"] })
		testutil.AssertEqual(t, result, 100)
	})
}

func TestLazy(t *testing.T) {
	t.Parallel()

	var (
		l     Lazy[int]
		calls int
	)
	f := func() int {
		calls++
		return calls
	}
	testutil.AssertEqual(t, l.Get(f), 1)
	testutil.AssertEqual(t, l.Get(f), 1)
	testutil.AssertEqual(t, calls, 1)
}

func TestLazyGetErr(t *testing.T) {
	t.Parallel()

	var (
		l       Lazy[string]
		calls   int
		errTest = errors.New("test")
	)
	f := func() (string, error) {
		calls++
		return "", errTest
	}
	for range 3 {
		if _, err := l.GetErr(f); !errors.Is(err, errTest) {
			t.Fatalf("want %v, got %v", errTest, err)
		}
	}
	testutil.AssertEqual(t, calls, 1)
}
