// Package terrain decodes the packed per-area walkability grid into an
// RGBA bitmap for the large-map overlay.
//
// Responsibilities: grid validation, height-based skew correction, and
// nibble-to-colour decoding.
// Key types: Grid, Bitmap, DecodeError.
//
// Decoding is a pure function of its inputs. Rows are independent and are
// decoded on parallel workers.
package terrain
