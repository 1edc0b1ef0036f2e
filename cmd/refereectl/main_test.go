package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okian/refbench/internal/domain/model"
	"github.com/okian/refbench/internal/seed"
	"github.com/smartystreets/goconvey/convey"
)

func TestRefereectl(t *testing.T) {
	convey.Convey("Given a seeded sqlite store", t, func() {
		ctx := context.Background()
		dsn := "file:" + filepath.Join(t.TempDir(), "refbench.db")
		store := []string{"--driver", "sqlite", "--dsn", dsn}

		exec := func(args ...string) (string, string, error) {
			var out, errOut bytes.Buffer
			err := run(ctx, append(append([]string{}, args...), store...), &out, &errOut)
			return out.String(), errOut.String(), err
		}

		out, logs, err := exec("seed", "--referees", "6", "--seed", "9", "--workers", "2")
		convey.So(err, convey.ShouldBeNil)
		var sum seed.Summary
		convey.So(json.Unmarshal([]byte(out), &sum), convey.ShouldBeNil)
		convey.So(sum.Referees, convey.ShouldEqual, 6)
		convey.So(logs, convey.ShouldContainSubstring, "seeding complete")

		first := seed.New(seed.WithReferees(6), seed.WithSeed(9)).Generate().Referees[0].ID

		convey.Convey("metrics prints the snapshot of a seeded referee", func() {
			out, _, err := exec("metrics", first)
			convey.So(err, convey.ShouldBeNil)
			var snap model.MetricsSnapshot
			convey.So(json.Unmarshal([]byte(out), &snap), convey.ShouldBeNil)
			convey.So(snap.RefereeID, convey.ShouldEqual, first)
			convey.So(snap.TotalInvitations, convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("top honours the limit", func() {
			out, _, err := exec("top", "--limit", "3", "--category", "quality")
			convey.So(err, convey.ShouldBeNil)
			var top []model.TopPerformer
			convey.So(json.Unmarshal([]byte(out), &top), convey.ShouldBeNil)
			convey.So(len(top), convey.ShouldBeLessThanOrEqualTo, 3)
			convey.So(len(top), convey.ShouldBeGreaterThan, 0)
			convey.So(top[0].Rank, convey.ShouldEqual, 1)
		})

		convey.Convey("rank, trend, peers and compare run against the same store", func() {
			for _, args := range [][]string{
				{"rank", first},
				{"trend", first, "--days", "7"},
				{"peers", first},
				{"compare", first},
				{"distribution", "speed"},
				{"benchmark", "journal", "jne"},
				{"benchmark", "expertise", "ecology"},
				{"benchmark", "invalidate"},
			} {
				_, _, err := exec(args...)
				convey.So(err, convey.ShouldBeNil)
			}
		})

		convey.Convey("unknown referees fail with not found", func() {
			_, _, err := exec("metrics", "nobody")
			convey.So(errors.Is(err, model.ErrRefereeNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("bad arguments fail before touching the store", func() {
			_, _, err := exec("rank")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
