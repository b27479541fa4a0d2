package fsutil

// File and directory permission constants.
// These follow standard Unix permission conventions and are used consistently
// throughout the application.
const (
	// FileModeDefault -rw-r--r--: default for regular files.
	FileModeDefault = 0o644
	// FileModeSecure -rw-r-----: for downloaded resources and ledger files.
	FileModeSecure = 0o640

	// DirModeDefault drwxr-xr-x: default for directories.
	DirModeDefault = 0o755
	// DirModeSecure drwxr-x---: for cache and state directories.
	DirModeSecure = 0o750
)
