package store

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DescribeDSN names the postgres target of dsn for logs, leaving out the password. An empty dsn
// describes what pgx resolves from the PG* environment variables.
func DescribeDSN(dsn string) string {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "postgres: unparsable dsn"
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}
