// Package common holds process-level helpers shared by the cmd binaries:
// logger setup and build metadata.
package common

// PackageName identifies this service in metrics and logs.
const PackageName = "custody-backend"

// Version is the service version, overridden at build time via
// -ldflags "-X github.com/certvault/custody-backend/common.Version=...".
var Version = "dev"
