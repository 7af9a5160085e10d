package bundle

import "errors"

var (
	// ErrMetadataNotFound is returned when a source has no document or version for a query.
	ErrMetadataNotFound = errors.New("metadata not found")
	// ErrMetadataNetwork is returned when a source could not be reached.
	ErrMetadataNetwork = errors.New("metadata network failure")
	// ErrMetadataParse is returned when a source document is malformed.
	ErrMetadataParse = errors.New("metadata parse failure")
	// ErrUnsupportedSource is returned for unknown source discriminants or query kinds.
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrVerificationMismatch marks a file whose content does not match its declared hash.
	// It never leaves the download coordinator: a mismatch only schedules a re-download.
	ErrVerificationMismatch = errors.New("verification mismatch")
	// ErrDownloadFailed is returned once a transfer exhausted its attempts.
	ErrDownloadFailed = errors.New("download failed")
	// ErrExtractionFailed is returned when an archive could not be unpacked.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrProcessSpawnFailed is returned when the client process could not be started.
	ErrProcessSpawnFailed = errors.New("process spawn failed")
	// ErrProcessNotFound is returned for pids that are not registered.
	ErrProcessNotFound = errors.New("process not found")
	// ErrInstanceRunning is returned when an instance is modified while it has live processes.
	ErrInstanceRunning = errors.New("instance is running")
)
