package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/landmark"
)

// ErrNotFound is returned when deleting a landmark that is not configured.
var ErrNotFound = errors.New("landmark not found")

// LandmarkStore holds the per-area landmark groups and their last centers.
type LandmarkStore struct {
	db *DB
}

// NewLandmarkStore returns a store backed by db.
func NewLandmarkStore(db *DB) *LandmarkStore {
	return &LandmarkStore{db: db}
}

// Put inserts or replaces the configuration of one landmark group. Stored
// centers are kept when the expected cluster count is unchanged.
func (s *LandmarkStore) Put(area string, g landmark.Group) error {
	if area == "" {
		return fmt.Errorf("%w: empty area id", landmark.ErrInvalidGroup)
	}
	if g.Name == "" {
		return fmt.Errorf("%w: empty tile name", landmark.ErrInvalidGroup)
	}
	if g.ExpectedClusterCount < 0 {
		return fmt.Errorf("%w: expected cluster count must be non-negative, got %d", landmark.ErrInvalidGroup, g.ExpectedClusterCount)
	}
	display := g.Display
	if display == "" {
		display = g.Name
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		id       string
		expected int
	)
	err = tx.QueryRow(`SELECT group_id, expected_clusters FROM landmark_groups WHERE area_id = ? AND tile_name = ?`,
		area, g.Name).Scan(&id, &expected)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		if _, err := tx.Exec(`INSERT INTO landmark_groups (group_id, area_id, tile_name, display_name, expected_clusters)
			VALUES (?, ?, ?, ?, ?)`, id, area, g.Name, display, g.ExpectedClusterCount); err != nil {
			return fmt.Errorf("failed to insert landmark %q: %w", g.Name, err)
		}
	case err != nil:
		return err
	default:
		if _, err := tx.Exec(`UPDATE landmark_groups SET display_name = ?, expected_clusters = ?, updated_at = CURRENT_TIMESTAMP
			WHERE group_id = ?`, display, g.ExpectedClusterCount, id); err != nil {
			return fmt.Errorf("failed to update landmark %q: %w", g.Name, err)
		}
		if expected != g.ExpectedClusterCount {
			if _, err := tx.Exec(`DELETE FROM landmark_centers WHERE group_id = ?`, id); err != nil {
				return err
			}
		}
	}

	if len(g.Centers) == g.ExpectedClusterCount && g.ExpectedClusterCount > 0 {
		if err := writeCenters(tx, id, g.Centers); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes the landmark group for tile in area.
func (s *LandmarkStore) Delete(area, tile string) error {
	res, err := s.db.Exec(`DELETE FROM landmark_groups WHERE area_id = ? AND tile_name = ?`, area, tile)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, area, tile)
	}
	return nil
}

// Area returns the landmark groups configured for area. Groups come back
// invalid; validity is a property of the current visit, not of storage.
func (s *LandmarkStore) Area(area string) (landmark.AreaIndex, error) {
	rows, err := s.db.Query(`SELECT group_id, tile_name, display_name, expected_clusters
		FROM landmark_groups WHERE area_id = ? ORDER BY tile_name`, area)
	if err != nil {
		return nil, err
	}
	idx := landmark.AreaIndex{}
	ids := make(map[string]string)
	for rows.Next() {
		var id string
		var g landmark.Group
		if err := rows.Scan(&id, &g.Name, &g.Display, &g.ExpectedClusterCount); err != nil {
			rows.Close()
			return nil, err
		}
		g.Centers = make([]r2.Vec, g.ExpectedClusterCount)
		idx[g.Name] = g
		ids[id] = g.Name
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(idx) == 0 {
		return idx, nil
	}

	crows, err := s.db.Query(`SELECT c.group_id, c.center_index, c.x, c.y
		FROM landmark_centers c JOIN landmark_groups g ON g.group_id = c.group_id
		WHERE g.area_id = ?`, area)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var (
			id string
			i  int
			p  r2.Vec
		)
		if err := crows.Scan(&id, &i, &p.X, &p.Y); err != nil {
			return nil, err
		}
		g := idx[ids[id]]
		if i >= 0 && i < len(g.Centers) {
			g.Centers[i] = p
		}
	}
	return idx, crows.Err()
}

// Areas returns the ids of every area with at least one landmark group.
func (s *LandmarkStore) Areas() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT area_id FROM landmark_groups ORDER BY area_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var areas []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// SaveCenters stores the centers of every valid group in idx so the next
// visit to area starts from them. Invalid groups keep their stored centers.
func (s *LandmarkStore) SaveCenters(area string, idx landmark.AreaIndex) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range idx.Names() {
		g := idx[name]
		if !g.Valid {
			continue
		}
		var id string
		err := tx.QueryRow(`SELECT group_id FROM landmark_groups WHERE area_id = ? AND tile_name = ? AND expected_clusters = ?`,
			area, name, len(g.Centers)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// Reconfigured or removed since the recompute started.
			continue
		}
		if err != nil {
			return err
		}
		if err := writeCenters(tx, id, g.Centers); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func writeCenters(tx *sql.Tx, id string, centers []r2.Vec) error {
	if _, err := tx.Exec(`DELETE FROM landmark_centers WHERE group_id = ?`, id); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO landmark_centers (group_id, center_index, x, y) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range centers {
		if _, err := stmt.Exec(id, i, c.X, c.Y); err != nil {
			return fmt.Errorf("failed to write center %d: %w", i, err)
		}
	}
	return nil
}
