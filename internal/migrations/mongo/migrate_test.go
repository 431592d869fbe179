package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCollections_CoverEveryRepository(t *testing.T) {
	var names []string
	for _, def := range Collections() {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Indexes, def.Name)
		assert.Contains(t, def.Validator, "$jsonSchema", def.Name)
	}
	assert.Equal(t, []string{"Events", "Slots", "Reservations"}, names)
}

func TestReservationsIndexes_ActiveReservationIsUniquePerUser(t *testing.T) {
	idx := ReservationsIndexes[0]
	require.NotNil(t, idx.Options)

	assert.Equal(t, bson.D{{Key: "event_id", Value: 1}, {Key: "user_id", Value: 1}}, idx.Keys)
	require.NotNil(t, idx.Options.Unique)
	assert.True(t, *idx.Options.Unique)
	require.NotNil(t, idx.Options.Name)
	assert.Equal(t, ActiveReservationIndexName, *idx.Options.Name)
	assert.Equal(t, bson.M{"active": true}, idx.Options.PartialFilterExpression)
}
