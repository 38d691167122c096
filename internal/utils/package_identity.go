package utils

import (
	"fmt"

	"github.com/ralt/rpmprefetch/internal/models"
)

// PackageIdentity returns the name-[epoch:]version-release.arch of a package
func PackageIdentity(pkg models.Package) string {
	evr := pkg.Version + "-" + pkg.Release
	if pkg.Epoch != "" && pkg.Epoch != "0" {
		evr = pkg.Epoch + ":" + evr
	}
	return fmt.Sprintf("%s-%s.%s", pkg.Name, evr, pkg.Architecture)
}

// DetectConflicts returns the packages of a repository whose identity was
// already seen earlier in the list
func DetectConflicts(packages []models.Package) []models.Package {
	seen := make(map[string]bool)

	var conflicts []models.Package
	for _, pkg := range packages {
		id := PackageIdentity(pkg)
		if seen[id] {
			conflicts = append(conflicts, pkg)
		}
		seen[id] = true
	}
	return conflicts
}
