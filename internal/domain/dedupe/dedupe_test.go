package dedupe_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	dedupe "github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a category recalculation is recorded", func() {
			key := dedupe.Key("comp-1", "cat-1")
			So(key, ShouldEqual, "6:comp-1/cat-1")
			seen := d.SeenAndRecord(ctx, key)

			Convey("Then it is newly pending", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a second request for the same category coalesces", func() {
				So(d.SeenAndRecord(ctx, key), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And another category is independent", func() {
				So(d.SeenAndRecord(ctx, dedupe.Key("comp-1", "cat-2")), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})

			Convey("And IDs containing the separator do not collide", func() {
				So(dedupe.Key("a/b", "c"), ShouldNotEqual, dedupe.Key("a", "b/c"))
				So(d.SeenAndRecord(ctx, dedupe.Key("a/b", "c")), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, dedupe.Key("a", "b/c")), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})

			Convey("And once released it can be recorded again", func() {
				d.Unrecord(ctx, key)
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, key), ShouldBeFalse)
			})
		})

		Convey("When releasing an unknown key", func() {
			d.Unrecord(ctx, "missing")
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))

		Convey("When a third key arrives", func() {
			d.SeenAndRecord(ctx, "a")
			d.SeenAndRecord(ctx, "b")
			d.SeenAndRecord(ctx, "c")

			Convey("Then the oldest key is forgotten", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})
	})

	Convey("Given concurrent producers", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "cat-"+strconv.Itoa(i%5)) {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then each key is newly recorded exactly once", func() {
			So(fresh, ShouldEqual, 5)
			So(d.Size(), ShouldEqual, 5)
		})
	})
}
