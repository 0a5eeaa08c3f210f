package db

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersvc/internal/domain/model"
)

func TestOpenSQLite_AutoMigrate(t *testing.T) {
	gdb, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(gdb))

	for _, m := range []interface{}{
		&model.User{}, &model.Product{}, &model.PromoCode{}, &model.Order{},
		&model.OrderItem{}, &model.InventoryAdjustment{}, &model.AuditLog{},
	} {
		assert.True(t, gdb.Migrator().HasTable(m))
	}
	assert.True(t, gdb.Migrator().HasIndex(&model.Order{}, "idx_orders_user_idempotency"))
}
