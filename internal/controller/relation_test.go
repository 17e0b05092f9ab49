package controller_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/store"
)

// Teams are looked up by slug but their names are unique too, so a
// connect-or-create on a new slug can collide on the name.
const teamsMigration = `-- +migrate Up
CREATE TABLE teams (
    team_id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE players (
    player_id INTEGER PRIMARY KEY AUTOINCREMENT,
    team_id INTEGER REFERENCES teams(team_id)
);

-- +migrate Down
DROP TABLE players;
DROP TABLE teams;
`

type player struct {
	ID     int64
	TeamID int64
}

var playerSchema = &controller.Schema{
	Name:      "Player",
	Table:     "players",
	Key:       []string{"player_id"},
	Columns:   []string{"player_id", "team_id"},
	Generated: []string{"player_id"},
	Relations: []controller.Relation{{
		Field:     "team_id",
		Target:    "teams",
		TargetKey: "team_id",
		Lookup:    []string{"slug"},
	}},
}

func (*player) Schema() *controller.Schema { return playerSchema }

func (p *player) Fields() ir.IRObject {
	return ir.IRObject{"player_id": ir.IRInt(p.ID), "team_id": ir.IRInt(p.TeamID)}
}

func (p *player) Scan(row ir.IRObject) error {
	if v, ok := row.Get("player_id"); ok {
		if n, ok := v.(ir.IRInt); ok {
			p.ID = int64(n)
		}
	}
	if v, ok := row.Get("team_id"); ok {
		if n, ok := v.(ir.IRInt); ok {
			p.TeamID = int64(n)
		}
	}
	return nil
}

func players(t *testing.T) *controller.Controller[player, *player] {
	t.Helper()
	fsys := fstest.MapFS{"migrations/001_teams.sql": {Data: []byte(teamsMigration)}}
	client, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "teams.db"), store.Options{
		Migrations:     fsys,
		MigrationsRoot: "migrations",
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	c, err := controller.New[player](client)
	require.NoError(t, err)
	return c
}

func TestResolveRelationConflictOnOtherUniqueKey(t *testing.T) {
	ctx := context.Background()
	c := players(t)

	red, err := c.ResolveRelation(ctx, "team_id", ir.IRObject{"slug": ir.IRString("red")}, ir.IRObject{"name": ir.IRString("Red")})
	require.NoError(t, err)
	redKey, ok := red.Key()
	require.True(t, ok)

	again, err := c.ResolveRelation(ctx, "team_id", ir.IRObject{"slug": ir.IRString("red")}, ir.IRObject{"name": ir.IRString("Red")})
	require.NoError(t, err)
	againKey, _ := again.Key()
	assert.Equal(t, redKey, againKey, "the same lookup connects to the existing row")

	_, err = c.ResolveRelation(ctx, "team_id", ir.IRObject{"slug": ir.IRString("crimson")}, ir.IRObject{"name": ir.IRString("Red")})
	require.Error(t, err)
	assert.ErrorIs(t, err, controller.ErrRelationConflict)
	assert.False(t, controller.IsNotFound(err))

	var cerr *controller.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, controller.CodeRelationConflict, cerr.Code)

	_, err = c.Create(ctx, ir.IRObject{}, controller.ConnectOrCreate("team_id", ir.IRObject{"slug": ir.IRString("scarlet")}).
		WithCreate(ir.IRObject{"name": ir.IRString("Red")}))
	assert.ErrorIs(t, err, controller.ErrRelationConflict, "Create reports the same conflict")

	n, err := c.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "a failed relation leaves no player behind")
}
