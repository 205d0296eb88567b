package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/substratelabs/braind/internal/config"
	"github.com/substratelabs/braind/internal/vectorstore"
)

func TestNew_ChromemProvider(t *testing.T) {
	cfg := config.StoreConfig{
		Provider:   "chromem",
		Collection: "knowledge_base",
		VectorSize: 16,
		Chromem:    config.ChromemStore{Path: t.TempDir()},
	}

	store, err := vectorstore.New(context.Background(), cfg, &hashEmbedder{size: 16}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.IsType(t, &vectorstore.ChromemStore{}, store)
	assert.NoError(t, store.Close())
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.StoreConfig{Provider: "pinecone"}

	_, err := vectorstore.New(context.Background(), cfg, &hashEmbedder{size: 16}, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
