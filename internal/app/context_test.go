package app

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
)

func TestOpenSeedsConfiguredAdmin(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(config.GenerateDefault("ST-ADMIN")), 0o644))

	rt, err := Open(context.Background(), Options{Workspace: ws})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, domain.Principal("ST-ADMIN"), rt.Oracle)
	assert.Nil(t, rt.Publisher)
}

func TestOpenKeepsRotatedOracle(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	rt, err := Open(ctx, Options{Workspace: ws})
	require.NoError(t, err)
	_, err = rt.Engine.SetOracle(ctx, domain.Principal(config.DefaultAdmin), "ST-NEXT")
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	rt, err = Open(ctx, Options{Workspace: ws, AdminOverride: "ST-OTHER"})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, domain.Principal("ST-NEXT"), rt.Oracle, "bootstrap must not clobber a rotated oracle")
}

func TestOpenWiresRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	ws := t.TempDir()
	cfg := strings.NewReplacer(
		`addr: ""`, "addr: "+mr.Addr(),
		"channel: ideaforge:events", "channel: forge:test",
	).Replace(config.GenerateDefault("ST-ADMIN"))
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(cfg), 0o644))

	ctx := context.Background()
	rt, err := Open(ctx, Options{Workspace: ws})
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Publisher)

	rt.Engine.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = rt.Engine.Mint(ctx, "ST-A", "ST-A", "uri1")
	require.NoError(t, err)

	last, err := mr.Get("forge:test:last_id")
	require.NoError(t, err)
	assert.Equal(t, "1", last)
}
