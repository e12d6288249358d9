package postgresengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parkdalelib/circulation-go/circulation"
	"github.com/parkdalelib/circulation-go/circulation/postgresengine"
	"github.com/parkdalelib/circulation-go/testutil/postgresengine/helper/postgreswrapper"
)

func Test_NewCirculationStore_With_Nil_Connection(t *testing.T) {
	// act
	_, errPGX := postgresengine.NewCirculationStoreFromPGXPool(nil)
	_, errSQL := postgresengine.NewCirculationStoreFromSQLDB(nil)
	_, errSQLX := postgresengine.NewCirculationStoreFromSQLX(nil)

	// assert
	assert.ErrorIs(t, errPGX, circulation.ErrNilDatabaseConnection)
	assert.ErrorIs(t, errSQL, circulation.ErrNilDatabaseConnection)
	assert.ErrorIs(t, errSQLX, circulation.ErrNilDatabaseConnection)
}

func Test_NewCirculationStore_With_Empty_TableName(t *testing.T) {
	// act
	err := postgreswrapper.TryCreateStoreWithTableName(t, "")

	// assert
	assert.ErrorIs(t, err, circulation.ErrEmptyTableName, "an empty table name should be rejected")
}

func Test_NewCirculationStore_With_Blank_TableName(t *testing.T) {
	// act
	err := postgreswrapper.TryCreateStoreWithTableName(t, "   ")

	// assert
	assert.ErrorIs(t, err, circulation.ErrEmptyTableName, "a blank table name should be rejected")
}

func Test_NewCirculationStore_With_Custom_TableName(t *testing.T) {
	// act
	err := postgreswrapper.TryCreateStoreWithTableName(t, "catalog_items")

	// assert
	assert.NoError(t, err, "a custom table name should be accepted")
}

func Test_WithClock_Rejects_Nil(t *testing.T) {
	// arrange
	option := postgresengine.WithClock(nil)

	// act
	err := option(nil)

	// assert
	assert.ErrorIs(t, err, circulation.ErrNilClock, "a nil clock should be rejected")
}
