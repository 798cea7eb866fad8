package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "late-report.json", `{"name":"Late report","description":"Report is late"}`)

	scn, err := Load(dir, "late-report")
	require.NoError(t, err)
	assert.Equal(t, "late-report", scn.ID)
	assert.Equal(t, "Late report", scn.Name)
	assert.Equal(t, InteractionInitiate, scn.InteractionType)
	assert.Equal(t, "Jordan Smith (Manager - Bot)", scn.StarterSenderName)
	assert.Equal(t, "Regarding your work today", scn.StarterSubject)
	assert.NotEmpty(t, scn.StarterEmailGenerationHint)
}

func TestLoadUnknownScenario(t *testing.T) {
	_, err := Load(t.TempDir(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"", "../etc/passwd", "a/b", `a\b`, "a.b"} {
		_, err := Load(dir, id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

func TestListSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.json", `{"name":"B"}`)
	write(t, dir, "a.json", `{"name":"A"}`)
	write(t, dir, "broken.json", `{not json`)
	write(t, dir, "notes.txt", `ignored`)

	scenarios, err := List(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].ID)
	assert.Equal(t, "b", scenarios[1].ID)
}

func TestPersonalize(t *testing.T) {
	assert.Equal(t, "Hi Ana,", Personalize("Hi {student_name},", "Ana"))
	assert.Equal(t, "Hi ,", Personalize("Hi {student_name},", ""))
	assert.Equal(t, "Hi there,", Personalize("Hi there,", "Ana"))
}
