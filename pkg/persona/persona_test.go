package persona

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePersona(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLookup(t *testing.T) {
	p, ok := Lookup(" Neutral ")
	require.True(t, ok)
	assert.Equal(t, Neutral, p)

	_, ok = Lookup("pirate")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"neutral", "engineer_wellness"}, Names())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coach.yaml")
	writePersona(t, path, "system_prompt: |\n  You are a coach.\nplanner_hint: one step\n")

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "coach", p.Name)
	assert.Equal(t, "You are a coach.", p.SystemPrompt)
	assert.Equal(t, "one step", p.PlannerHint)

	bad := filepath.Join(dir, "bad.yaml")
	writePersona(t, bad, "name: empty\n")
	_, err = LoadFile(bad)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	p, err := Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, Neutral, p)

	p, err = Resolve("engineer_wellness", "")
	require.NoError(t, err)
	assert.Equal(t, EngineerWellness.Name, p.Name)

	_, err = Resolve("pirate", "")
	assert.Error(t, err)
}

func TestFileSourceReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	writePersona(t, path, "name: first\nsystem_prompt: one\n")

	src, err := NewFileSource(path, zerolog.Nop())
	require.NoError(t, err)
	defer src.Stop()

	assert.Equal(t, "first", src.Current().Name)

	writePersona(t, path, "name: second\nsystem_prompt: two\n")
	assert.Eventually(t, func() bool {
		return src.Current().Name == "second"
	}, 3*time.Second, 20*time.Millisecond)

	// a broken file keeps the previous persona
	writePersona(t, path, "name: broken\n")
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, "second", src.Current().Name)
}

func TestStatic(t *testing.T) {
	assert.Equal(t, Neutral, Static(Neutral).Current())
}
