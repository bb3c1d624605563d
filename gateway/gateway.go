// Package gateway holds the external collaborators of the delta engine: the
// Kusto cluster connection used to reverse engineer and to push deltas, and
// the file store scripts are read from and written to. The core never does
// I/O itself; it consumes these interfaces.
package gateway

import (
	"context"

	"github.com/berthertogen/delta-kusto/command"
)

// Database is a single database on a cluster.
type Database interface {
	// DatabaseName returns the database the gateway is bound to.
	DatabaseName() string
	// ReverseEngineer extracts the database's schema as the command list
	// that would recreate it.
	ReverseEngineer(ctx context.Context) ([]command.Command, error)
	// Execute runs the commands against the database as a single script,
	// failing if any command does not complete.
	Execute(ctx context.Context, cmds []command.Command) error
}

// File reads and writes script files.
type File interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	// ReadFolder returns the contents of every .kql file under root,
	// ordered by path.
	ReadFolder(root string) ([]string, error)
}
