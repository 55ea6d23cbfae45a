package landmark

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultMaxIterations bounds Lloyd iterations when no limit is configured.
const DefaultMaxIterations = 100

// KMeans partitions points into k clusters and returns the cluster index of
// each point. Seeding is maximin starting from the first point and ties go
// to the lower index, so identical input always yields identical output.
// Clusters may end up empty when points has fewer distinct positions than k.
func KMeans(points []r2.Vec, k, maxIterations int) []int {
	if k <= 0 || len(points) == 0 {
		return nil
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	centers := seedCenters(points, k)
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			c := nearest(centers, p)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		centers = means(points, assign, centers)
	}
	return assign
}

// seedCenters picks points[0], then repeatedly the point farthest from all
// chosen centers.
func seedCenters(points []r2.Vec, k int) []r2.Vec {
	centers := make([]r2.Vec, 0, k)
	centers = append(centers, points[0])
	for len(centers) < k {
		best, bestDist := 0, -1.0
		for i, p := range points {
			d := r2.Norm2(r2.Sub(p, centers[nearest(centers, p)]))
			if d > bestDist {
				best, bestDist = i, d
			}
		}
		centers = append(centers, points[best])
	}
	return centers
}

func nearest(centers []r2.Vec, p r2.Vec) int {
	best, bestDist := 0, -1.0
	for j, c := range centers {
		d := r2.Norm2(r2.Sub(p, c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// means returns the mean of each cluster. A cluster with no points keeps
// its entry from fallback.
func means(points []r2.Vec, assign []int, fallback []r2.Vec) []r2.Vec {
	sums := make([]r2.Vec, len(fallback))
	counts := make([]int, len(fallback))
	for i, c := range assign {
		if c < 0 || c >= len(sums) {
			continue
		}
		sums[c] = r2.Add(sums[c], points[i])
		counts[c]++
	}
	out := make([]r2.Vec, len(fallback))
	for c := range out {
		if counts[c] == 0 {
			out[c] = fallback[c]
			continue
		}
		out[c] = r2.Scale(1/float64(counts[c]), sums[c])
	}
	return out
}
