// Package world holds the value types exchanged with the host game-state
// provider: game states, map views, entities and per-area terrain.
package world
