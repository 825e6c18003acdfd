package core

import (
	"context"
	"fmt"

	"smartloan/internal/infra/persistence/badger"
	"smartloan/internal/infra/persistence/memory"
	"smartloan/internal/infra/persistence/postgres"
	"smartloan/internal/infra/persistence/sqlite"
	"smartloan/pkg/domain"
)

// StorageDriver identifies a concrete session store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBadger   StorageDriver = "badger"   // embedded badger key/value store
)

// StorageOptions selects and configures a session store. An empty Driver
// selects sqlite.
type StorageOptions struct {
	Driver      StorageDriver `yaml:"driver" validate:"omitempty,oneof=memory sqlite postgres badger"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	BadgerPath  string        `yaml:"badger_path"`
}

// OpenSessionStore constructs the store named by opts.Driver.
func OpenSessionStore(ctx context.Context, opts StorageOptions) (domain.SessionStore, error) {
	switch opts.Driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite, "":
		return sqlite.NewStore(opts.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	case StorageBadger:
		return badger.NewStore(opts.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", opts.Driver)
	}
}
