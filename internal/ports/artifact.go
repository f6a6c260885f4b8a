package ports

// ArtifactStore writes and removes GDPR data-export files under a configured
// storage root.
type ArtifactStore interface {
	// WriteExport marshals doc to JSON and writes it as a new artifact,
	// returning the file path. Failures come back as *domain.StorageWriteError.
	WriteExport(customerID string, doc any) (string, error)

	// Remove deletes one artifact. A missing file surfaces as an error
	// wrapping fs.ErrNotExist so callers can treat it as already gone.
	Remove(path string) error
}
