package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/seasondb/internal/domain"
)

func TestGetOverridesMissingFile(t *testing.T) {
	repo := NewOverrideRepository(zerolog.Nop(), afero.NewMemMapFs())
	o, err := repo.GetOverrides(context.Background(), "overrides.yaml")
	require.NoError(t, err)
	assert.Empty(t, o)
}

func TestGetOverridesAndApply(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := `overrides:
  "101":
    name: 正確名稱
    premiere_time: "22:30"
  "102":
    premiere_date: ""
`
	require.NoError(t, afero.WriteFile(fs, "overrides.yaml", []byte(body), 0o644))

	repo := NewOverrideRepository(zerolog.Nop(), fs)
	o, err := repo.GetOverrides(context.Background(), "overrides.yaml")
	require.NoError(t, err)
	require.Len(t, o, 2)

	r1 := domain.Record{ID: "101", Name: "錯誤", Weekday: domain.Some("六")}
	assert.True(t, o.Apply(&r1))
	assert.Equal(t, "正確名稱", r1.Name)
	assert.Equal(t, domain.Some("22:30"), r1.PremiereTime)
	assert.Equal(t, domain.Some("六"), r1.Weekday)

	r2 := domain.Record{ID: "102", Weekday: domain.Some("一")}
	assert.True(t, o.Apply(&r2))
	assert.False(t, r2.Weekday.Valid())

	r3 := domain.Record{ID: "999"}
	assert.False(t, o.Apply(&r3))
}

func TestGetOverridesInvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "overrides.yaml", []byte("overrides: [unterminated"), 0o644))

	_, err := NewOverrideRepository(zerolog.Nop(), fs).GetOverrides(context.Background(), "overrides.yaml")
	assert.Error(t, err)
}

func TestStoreOverridesIsCanonical(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := `overrides:
    "202": {story: 新簡介}
    "101":
        name: 正確名稱
        premiere_date: 六
`
	require.NoError(t, afero.WriteFile(fs, "overrides.yaml", []byte(body), 0o644))

	repo := NewOverrideRepository(zerolog.Nop(), fs)
	o, err := repo.GetOverrides(context.Background(), "overrides.yaml")
	require.NoError(t, err)
	require.NoError(t, repo.StoreOverrides(context.Background(), "overrides.yaml", o))

	got, err := afero.ReadFile(fs, "overrides.yaml")
	require.NoError(t, err)

	want := `overrides:
  "101":
    name: 正確名稱
    premiere_date: 六

  "202":
    story: 新簡介
`
	assert.Equal(t, want, string(got))

	again, err := repo.GetOverrides(context.Background(), "overrides.yaml")
	require.NoError(t, err)
	assert.Equal(t, o, again)
}
