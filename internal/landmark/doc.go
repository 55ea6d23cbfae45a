// Package landmark turns raw tile-instance positions into a small number of
// stable, named cluster centers per area.
//
// Responsibilities: landmark group configuration, the index-copy fast path,
// deterministic K-means, and parallel recompute over disjoint groups.
// Key types: Group, AreaIndex, Observations, Report.
package landmark
