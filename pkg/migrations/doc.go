// Package migrations generates SQL files that provision the engine's own tables: the ledger
// recording applied migrations and the lease lock table. They are meant for environments where
// DDL is reviewed and applied by a DBA before the first run, across PostgreSQL,
// MySQL/MariaDB and SQLite.
package migrations
