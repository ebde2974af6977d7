package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/testutil"
)

func TestProfileUpsertAndAssignment(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	defID, err := s.UpsertProfile(ctx, &store.LanguageProfile{
		Name:                "Default",
		AcceptanceThreshold: 60,
		UpgradeThreshold:    80,
		IsDefault:           true,
		Languages: []store.LanguageProfileItem{
			{Language: "en", Enabled: true, ForcedPreference: store.ForcedAuto},
			{Language: "de", Enabled: true, ForcedPreference: store.ForcedDisabled},
		},
	})
	require.NoError(t, err)

	animeID, err := s.UpsertProfile(ctx, &store.LanguageProfile{
		Name:                "Anime",
		AcceptanceThreshold: 50,
		UpgradeThreshold:    75,
		Languages: []store.LanguageProfileItem{
			{Language: "en", Enabled: true, ForcedPreference: store.ForcedSeparate},
		},
	})
	require.NoError(t, err)

	// Unassigned media resolves to the default profile.
	p, err := s.ProfileFor(ctx, "series", "sonarr:100")
	require.NoError(t, err)
	assert.Equal(t, defID, p.ID)
	require.Len(t, p.Languages, 2)
	assert.Equal(t, "en", p.Languages[0].Language)

	require.NoError(t, s.AssignProfile(ctx, animeID, "series", "sonarr:100"))
	p, err = s.ProfileFor(ctx, "series", "sonarr:100")
	require.NoError(t, err)
	assert.Equal(t, animeID, p.ID)

	// Re-upserting replaces the item list in place.
	_, err = s.UpsertProfile(ctx, &store.LanguageProfile{
		ID:                  animeID,
		Name:                "Anime",
		AcceptanceThreshold: 55,
		UpgradeThreshold:    75,
		Languages: []store.LanguageProfileItem{
			{Language: "ja", Enabled: true, ForcedPreference: store.ForcedDisabled},
			{Language: "en", Enabled: true, ForcedPreference: store.ForcedSeparate},
		},
	})
	require.NoError(t, err)

	p, err = s.GetProfile(ctx, animeID)
	require.NoError(t, err)
	assert.Equal(t, 55, p.AcceptanceThreshold)
	require.Len(t, p.Languages, 2)
	assert.Equal(t, "ja", p.Languages[0].Language)
}

func TestDeleteProfileGuardsReferences(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	id, err := s.UpsertProfile(ctx, &store.LanguageProfile{
		Name:                "Guarded",
		AcceptanceThreshold: 60,
		UpgradeThreshold:    80,
		Languages:           []store.LanguageProfileItem{{Language: "en", Enabled: true, ForcedPreference: store.ForcedDisabled}},
	})
	require.NoError(t, err)

	item := newItem("/media/show/s01e01.mkv", "en")
	item.ProfileID = id
	_, err = s.UpsertWantedItem(ctx, item)
	require.NoError(t, err)

	assert.Error(t, s.DeleteProfile(ctx, id))

	removed, err := s.DeleteWantedByPaths(ctx, map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.NoError(t, s.DeleteProfile(ctx, id))
}
