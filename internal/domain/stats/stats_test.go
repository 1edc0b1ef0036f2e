package stats_test

import (
	"testing"

	"github.com/okian/refbench/internal/domain/stats"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDescriptive(t *testing.T) {
	Convey("Given a small sample", t, func() {
		xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}

		Convey("Mean, min and max are computed", func() {
			So(stats.Mean(xs), ShouldEqual, 5)
			So(stats.Min(xs), ShouldEqual, 2)
			So(stats.Max(xs), ShouldEqual, 9)
		})

		Convey("StdDev is the sample deviation", func() {
			So(stats.StdDev(xs), ShouldAlmostEqual, 2.138, 0.001)
		})

		Convey("Empty and single samples yield zero", func() {
			So(stats.Mean(nil), ShouldEqual, 0)
			So(stats.StdDev([]float64{3}), ShouldEqual, 0)
			So(stats.Min(nil), ShouldEqual, 0)
			So(stats.Max(nil), ShouldEqual, 0)
		})
	})
}

func TestPercentile(t *testing.T) {
	Convey("Given a sorted sample", t, func() {
		sorted := []float64{1, 2, 3, 4, 5}

		So(stats.Percentile(sorted, 0), ShouldEqual, 1)
		So(stats.Percentile(sorted, 50), ShouldEqual, 3)
		So(stats.Percentile(sorted, 100), ShouldEqual, 5)
		So(stats.Percentile(sorted, 10), ShouldAlmostEqual, 1.4, 1e-9)
		So(stats.Percentile(sorted, 75), ShouldEqual, 4)
		So(stats.Percentile(nil, 50), ShouldEqual, 0)
		So(stats.Percentile([]float64{7}, 90), ShouldEqual, 7)
	})
}

func TestHistogram(t *testing.T) {
	Convey("Given values spread over a range", t, func() {
		edges, counts := stats.Histogram([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 10)

		Convey("Every value lands in a bin including the maximum", func() {
			So(len(edges), ShouldEqual, 11)
			So(len(counts), ShouldEqual, 10)
			total := 0
			for _, c := range counts {
				total += c
			}
			So(total, ShouldEqual, 11)
			So(counts[9], ShouldEqual, 2)
			So(edges[0], ShouldEqual, 0)
			So(edges[10], ShouldEqual, 10)
		})

		Convey("A flat sample falls in one bin", func() {
			_, counts := stats.Histogram([]float64{3, 3, 3}, 10)
			total := 0
			for _, c := range counts {
				total += c
			}
			So(total, ShouldEqual, 3)
		})

		Convey("No values means no histogram", func() {
			edges, counts := stats.Histogram(nil, 10)
			So(edges, ShouldBeNil)
			So(counts, ShouldBeNil)
		})
	})
}

func TestSlope(t *testing.T) {
	Convey("Given a linear series", t, func() {
		So(stats.Slope([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7}), ShouldAlmostEqual, 2, 1e-9)
		So(stats.Slope([]float64{0, 1, 2}, []float64{5, 5, 5}), ShouldAlmostEqual, 0, 1e-12)
		So(stats.Slope([]float64{0}, []float64{5}), ShouldEqual, 0)
	})
}

func TestClampAndRound(t *testing.T) {
	Convey("Clamp and Round1 behave at the edges", t, func() {
		So(stats.Clamp01(-0.2), ShouldEqual, 0)
		So(stats.Clamp01(1.7), ShouldEqual, 1)
		So(stats.Clamp(5, 0, 10), ShouldEqual, 5)
		So(stats.Round1(66.66), ShouldEqual, 66.7)
		So(stats.Round1(12.34), ShouldEqual, 12.3)
	})
}
