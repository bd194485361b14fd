package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func TestMongoTransactionOptions(t *testing.T) {
	opts := transactionOptions()
	require.NotNil(t, opts.ReadPreference)
	assert.Equal(t, readpref.PrimaryMode, opts.ReadPreference.Mode())
	require.NotNil(t, opts.ReadConcern)
	assert.Equal(t, "local", opts.ReadConcern.Level)
	require.NotNil(t, opts.WriteConcern)
	assert.Equal(t, "majority", opts.WriteConcern.W)
}
