package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dedupe "github.com/okian/globalboard/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a deduper with a five minute window", t, func() {
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		d := dedupe.NewInMemoryDeduper(dedupe.WithWindow(5*time.Minute), dedupe.WithClock(clock.Now))

		Convey("When a key is new", func() {
			seen := d.SeenAndRecord(ctx, "target:abc")

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is recorded twice inside the window", func() {
			d.SeenAndRecord(ctx, "target:abc")
			clock.Advance(4 * time.Minute)

			So(d.SeenAndRecord(ctx, "target:abc"), ShouldBeTrue)
		})

		Convey("When the window has passed", func() {
			d.SeenAndRecord(ctx, "target:abc")
			clock.Advance(5 * time.Minute)

			Convey("Then the key can be recorded again", func() {
				So(d.SeenAndRecord(ctx, "target:abc"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is released", func() {
			d.SeenAndRecord(ctx, "target:abc")
			d.Unrecord(ctx, "target:abc")

			Convey("Then it can be recorded immediately", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "target:abc"), ShouldBeFalse)
			})
		})

		Convey("When releasing an unknown key", func() {
			So(func() { d.Unrecord(ctx, "nobody") }, ShouldNotPanic)
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2), dedupe.WithClock(clock.Now))

		Convey("When it is full", func() {
			d.SeenAndRecord(ctx, "a")
			clock.Advance(time.Second)
			d.SeenAndRecord(ctx, "b")
			clock.Advance(time.Second)
			d.SeenAndRecord(ctx, "c")

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
			})
		})
	})

	Convey("Given concurrent callers racing on one key", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "target:same") {
					winners.Add(1)
				}
				d.SeenAndRecord(ctx, fmt.Sprintf("requester:%d", i))
			}()
		}
		wg.Wait()

		Convey("Then exactly one wins", func() {
			So(winners.Load(), ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 65)
		})
	})
}
