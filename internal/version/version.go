package version

// Version is the current version of datasync.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "1.4.0"

// Name is the application name.
const Name = "datasync"

// Description is a short description of the application.
const Description = "Watermark-based incremental table sync with cascading pipelines"
