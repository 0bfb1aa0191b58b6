//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Cache groups targets that run the built CLI against the local cache.
type Cache mg.Namespace

// Ingest upserts every sighting file under data/sightings.
func (Cache) Ingest() error {
	mg.Deps(Init, Build)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
		m, err := filepath.Glob(filepath.Join("data", "sightings", pattern))
		if err != nil {
			return err
		}
		files = append(files, m...)
	}
	if len(files) == 0 {
		fmt.Println("No sighting files in data/sightings.")
		return nil
	}
	return sh.RunV(binPath, append([]string{"author", "ingest"}, files...)...)
}

// Consolidate merges duplicate identities in the local cache.
func (Cache) Consolidate() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "author", "consolidate")
}

// Export writes the local cache to data/exports/authors.yaml.
func (Cache) Export() error {
	mg.Deps(Init, Build)
	out := filepath.Join("data", "exports", "authors.yaml")
	return sh.RunV(binPath, "author", "export", "--out", out)
}

// Stats prints identifier coverage for the local cache.
func (Cache) Stats() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "author", "stats")
}
