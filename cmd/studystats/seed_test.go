package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/memory"
)

const seedTOML = `
[[groups]]
id = "g1"
name = "Physics"

  [[groups.members]]
  user_id = "alice"
  display_name = "Alice"
  streak = 4
  joined_at = 2024-04-01T00:00:00Z

    [[groups.members.sessions]]
    subject = "mechanics"
    minutes = 90
    productivity = 80
    started_at = 2024-05-13T10:00:00Z

  [[groups.members]]
  user_id = "bob"
  status = "left"
  joined_at = 2024-04-02T00:00:00Z
`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.toml")
	require.NoError(t, os.WriteFile(path, []byte(seedTOML), 0o600))

	dir := memory.NewDirectory()
	n, err := loadSeed(path, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ctx := context.Background()
	members, err := dir.ListActiveMembers(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)

	from := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	sessions, err := dir.ListSessions(ctx, []string{"alice"}, from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 90, sessions[0].DurationMinutes)

	profiles, err := dir.GetProfiles(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, 4, profiles["alice"].CurrentStreak)
}

func TestLoadSeed_Errors(t *testing.T) {
	_, err := loadSeed(filepath.Join(t.TempDir(), "missing.toml"), memory.NewDirectory())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[groups]]\nname = \"x\"\n"), 0o600))
	_, err = loadSeed(path, memory.NewDirectory())
	assert.ErrorContains(t, err, "group without id")
}
