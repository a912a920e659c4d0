// Package sqlite exposes the SQLite backend of the call graph engine while
// keeping its implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/calltree/internal/sqlite"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

// DatabaseFile is the name of the database file inside Config.DataDir.
const DatabaseFile = sqlite.DatabaseFile

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	backend := sqlite.NewBackend()
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".calltree-db",
//	})
//	defer backend.Detach()
func NewBackend() types.Backend {
	return sqlite.NewBackend()
}
