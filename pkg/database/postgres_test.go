package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	dsn := DSN("db", "5432", "ledger_user", "secret", "ledger_db")
	assert.Equal(t, "host=db user=ledger_user password=secret dbname=ledger_db port=5432 sslmode=disable TimeZone=UTC", dsn)
}
