package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"storecache/pkg/dberror"
	"storecache/pkg/objectid"
	"storecache/pkg/store"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through the six end-to-end scenarios of the caching core",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cleanup, err := newStore()
		if err != nil {
			return err
		}
		defer cleanup()
		ctx := context.Background()

		step("Independent commits", func() error {
			t1 := s.Begin()
			id, err := t1.Create(ctx, 42, "a")
			if err != nil {
				return err
			}
			if err := t1.Commit(ctx); err != nil {
				return err
			}
			t2 := s.Begin()
			got, err := t2.Lookup(ctx, "a")
			if err != nil {
				return err
			}
			value, ok, err := t2.Peek(ctx, got)
			if err != nil {
				return err
			}
			if !ok || value != 42 || got != id {
				return fmt.Errorf("expected (id=%v, 42), got (id=%v, %v, ok=%v)", id, got, value, ok)
			}
			return nil
		})

		step("Write conflict serialization", func() error {
			owner := s.Begin()
			id, err := owner.Create(ctx, 1, "counter")
			if err != nil {
				return err
			}
			if err := owner.Commit(ctx); err != nil {
				return err
			}

			t1 := s.Begin()
			if _, err := t1.Lock(ctx, id); err != nil {
				return err
			}

			t2 := s.Begin()
			done := make(chan error, 1)
			go func() {
				_, err := t2.Lock(ctx, id)
				done <- err
			}()

			if err := t1.Commit(ctx); err != nil {
				return err
			}
			return <-done
		})

		step("Deadlock resolution", func() error {
			t1 := s.Begin()
			t2 := s.Begin()

			if _, err := t1.Lock(ctx, 100); err != nil {
				return err
			}
			if _, err := t2.Lock(ctx, 200); err != nil {
				return err
			}

			t2Blocked := make(chan error, 1)
			go func() {
				_, err := t2.Lock(ctx, 100)
				t2Blocked <- err
			}()

			// Wait until t2 is queued on object 100, so t1's request is the
			// one that would close the cycle.
			for len(s.LockSnapshot().Waiters[100]) == 0 {
				time.Sleep(time.Millisecond)
			}

			_, err := t1.Lock(ctx, 200)
			if err == nil {
				return fmt.Errorf("expected DEADLOCK, got nil")
			}
			var dbErr *dberror.Error
			if !errors.As(err, &dbErr) || dbErr.Kind != dberror.Deadlock {
				return fmt.Errorf("expected DEADLOCK, got %v", err)
			}
			if err := t1.Abort(ctx); err != nil {
				return err
			}
			if err := <-t2Blocked; err != nil {
				return err
			}
			return t2.Commit(ctx)
		})

		step("Read-your-writes within a transaction", func() error {
			value := 1
			t1 := s.Begin()
			id, err := t1.Create(ctx, &value, "x")
			if err != nil {
				return err
			}
			v, ok, err := t1.Peek(ctx, id)
			if err != nil || !ok || *(v.(*int)) != 1 {
				return fmt.Errorf("expected 1, got %v ok=%v err=%v", v, ok, err)
			}
			locked, err := t1.Lock(ctx, id)
			if err != nil {
				return err
			}
			*(locked.(*int)) = 2
			v, ok, err = t1.Peek(ctx, id)
			if err != nil || !ok || *(v.(*int)) != 2 {
				return fmt.Errorf("expected 2, got %v ok=%v err=%v", v, ok, err)
			}
			return t1.Commit(ctx)
		})

		step("Abort discards writes", func() error {
			t1 := s.Begin()
			if _, err := t1.Create(ctx, 9, "b"); err != nil {
				return err
			}
			if err := t1.Abort(ctx); err != nil {
				return err
			}
			t2 := s.Begin()
			id, err := t2.Lookup(ctx, "b")
			if err != nil {
				return err
			}
			if id != objectid.Absent {
				return fmt.Errorf("expected Absent, got %v", id)
			}
			return nil
		})

		step("Eviction under pressure", func() error {
			small, cleanup2, err := newStoreWithCapacity(2)
			if err != nil {
				return err
			}
			defer cleanup2()

			var first objectid.ID
			for i, name := range []string{"p", "q", "r"} {
				t := small.Begin()
				id, err := t.Create(ctx, i, name)
				if err != nil {
					return err
				}
				if err := t.Commit(ctx); err != nil {
					return err
				}
				if i == 0 {
					first = id
				}
			}
			t := small.Begin()
			_, ok, err := t.Peek(ctx, first)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("expected evicted entry to still be re-fetchable via backing store")
			}
			return nil
		})

		return nil
	},
}

// newStoreWithCapacity mirrors newStore but overrides cache capacity, for
// the eviction scenario which needs a much smaller cache than the flags
// configure for the rest of the demo.
func newStoreWithCapacity(capacity int) (*store.Store, func(), error) {
	prev := flagCacheCapacity
	flagCacheCapacity = capacity
	defer func() { flagCacheCapacity = prev }()

	s, cleanup, err := newStore()
	return s, cleanup, err
}

// step runs one demo scenario and prints its outcome.
func step(name string, fn func() error) {
	fmt.Println(headingStyle.Render("▸ " + name))
	if err := fn(); err != nil {
		fmt.Println(failStyle.Render("  FAILED: " + err.Error()))
		return
	}
	fmt.Println(okStyle.Render("  ok"))
}
