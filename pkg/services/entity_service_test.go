package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magpie-ai/magpie/pkg/models"
	"github.com/magpie-ai/magpie/test/util"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "artisan_ai", Slug("Artisan AI"))
	assert.Equal(t, "openai", Slug("  OpenAI  "))
	assert.Equal(t, "a_b_c", Slug("a--b__c!"))
	assert.Equal(t, "", Slug("!!!"))
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "cmp_artisan_ai", CanonicalID("Artisan AI", models.EntityCompany))
	assert.Equal(t, "per_jane_doe", CanonicalID("Jane Doe", models.EntityPerson))
	assert.Equal(t, "pro_widget", CanonicalID("Widget", models.EntityProduct))
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, models.EntityCompany, NormalizeType("  Company "))
	assert.Equal(t, models.EntityOther, NormalizeType("spaceship"))
	assert.Equal(t, models.EntityOther, NormalizeType(""))
}

func TestEntityService_Resolve(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	svc := NewEntityService(pool)
	ctx := context.Background()

	t.Run("creates and is deterministic", func(t *testing.T) {
		id1, err := svc.Resolve(ctx, "Artisan AI", "company")
		require.NoError(t, err)
		assert.Equal(t, "cmp_artisan_ai", id1)

		// Repeated calls against the same state return the same id.
		id2, err := svc.Resolve(ctx, "Artisan AI", "company")
		require.NoError(t, err)
		assert.Equal(t, id1, id2)
	})

	t.Run("case-insensitive name reuses existing id", func(t *testing.T) {
		id, err := svc.Resolve(ctx, "ARTISAN ai", "company")
		require.NoError(t, err)
		assert.Equal(t, "cmp_artisan_ai", id)
	})

	t.Run("different type is a different entity", func(t *testing.T) {
		id, err := svc.Resolve(ctx, "Artisan AI", "product")
		require.NoError(t, err)
		assert.Equal(t, "pro_artisan_ai", id)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := svc.Resolve(ctx, "", "company")
		assert.True(t, IsValidationError(err))
		_, err = svc.Resolve(ctx, "Artisan AI", "")
		assert.True(t, IsValidationError(err))
	})
}

func TestEntityService_TryResolveExisting(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	svc := NewEntityService(pool)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "Artisan AI", "company")
	require.NoError(t, err)

	t.Run("matches canonical name case-insensitively", func(t *testing.T) {
		ref, err := svc.TryResolveExisting(ctx, "artisan ai")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "cmp_artisan_ai", ref.ID)
		assert.Equal(t, models.EntityCompany, ref.Type)
	})

	t.Run("matches aliases", func(t *testing.T) {
		_, err := pool.Exec(ctx,
			`UPDATE entities SET aliases = '["Artisan"]'::jsonb WHERE id = 'cmp_artisan_ai'`)
		require.NoError(t, err)

		ref, err := svc.TryResolveExisting(ctx, "artisan")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "cmp_artisan_ai", ref.ID)
	})

	t.Run("miss returns nil without creating", func(t *testing.T) {
		ref, err := svc.TryResolveExisting(ctx, "Zzz Unknown")
		require.NoError(t, err)
		assert.Nil(t, ref)

		var count int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT count(*) FROM entities WHERE canonical_name = 'Zzz Unknown'`).Scan(&count))
		assert.Zero(t, count)
	})
}

func TestEntityService_SearchByName(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	svc := NewEntityService(pool)
	ctx := context.Background()

	for _, name := range []string{"Artisan AI", "Artisanal Goods", "OpenAI"} {
		_, err := svc.Resolve(ctx, name, "company")
		require.NoError(t, err)
	}

	refs, err := svc.SearchByName(ctx, "Artisan", 5)
	require.NoError(t, err)
	require.NotEmpty(t, refs)
	assert.Equal(t, "Artisan AI", refs[0].Name)
}
