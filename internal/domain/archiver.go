package domain

// Packager bundles files into a single compressed archive.
type Packager interface {
	Package(sourcePaths []string, destPath string) error
	Entries(archivePath string) ([]string, error)
}
