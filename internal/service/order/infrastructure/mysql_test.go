package infrastructure

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-order/internal/service/order/domain"
)

func TestNormalizeDSN(t *testing.T) {
	dsn, err := NormalizeDSN("root:secret@tcp(localhost:3306)/orders")
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, time.UTC, cfg.Loc)
	assert.Equal(t, "orders", cfg.DBName)

	_, err = NormalizeDSN("not a dsn")
	assert.Error(t, err)
}

func TestMapperRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	o := &domain.Order{ID: 4, CustomerID: 7, ProductID: 3, Amount: 100, Status: domain.StatePaid, CreatedAt: now, UpdatedAt: now}

	assert.Equal(t, o, ToDomainOrder(FromDomainOrder(o)))
	assert.Nil(t, ToDomainOrder(nil))
	assert.Nil(t, FromDomainOrder(nil))
}
