// Package radar turns one frame of host state plus the scheduler's cached
// artifacts into draw commands for the large map and the mini map.
//
// The actual world-to-screen formula belongs to the host and is supplied
// as a Projector. Icons are resolved through an IconCatalog built once from
// configuration.
package radar
