package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/docimport/internal/core"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_CSVWithFlags(t *testing.T) {
	rows := writeFile(t, "categories.csv", "Name,Slug\nShoes,shoes\nHats,hats\n")

	out, err := execute(t, "",
		"run", "--store", "memory",
		"--collection", "categories",
		"--rows", rows,
		"--mode", "create",
		"--map", "Name=title",
		"--map", "Slug=slug",
	)
	require.NoError(t, err)

	var res core.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Errors)
}

func TestRun_JSONFromStdinWithSettingsFile(t *testing.T) {
	settings := writeFile(t, "settings.json", `{
		"mode": "upsert",
		"compareField": "slug",
		"fieldMappings": [
			{"csvField": "name", "collectionField": "title"},
			{"csvField": "slug", "collectionField": "slug"}
		]
	}`)

	out, err := execute(t, `[{"name": "Shoes", "slug": "shoes"}]`,
		"run", "--store", "memory",
		"-c", "categories",
		"-r", "-",
		"-s", settings,
	)
	require.NoError(t, err)

	var res core.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, 1, res.Created)
}

func TestRun_ValidationErrorListsProblems(t *testing.T) {
	_, err := execute(t, `[]`,
		"run", "--store", "memory",
		"--collection", "nope",
		"--rows", "-",
		"--mode", "merge",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(Code: REQ002)")
	assert.Contains(t, err.Error(), `unknown collection "nope"`)
	assert.Contains(t, err.Error(), "settings.mode: must be one of create, update, upsert")
}

func TestRun_FlagErrors(t *testing.T) {
	_, err := execute(t, "", "run", "--store", "memory", "--rows", "-")
	assert.ErrorContains(t, err, `required flag(s) "collection" not set`)

	_, err = execute(t, "", "run", "--store", "memory", "-c", "categories", "-r", "-", "--map", "no-equals")
	assert.ErrorContains(t, err, `invalid --map "no-equals"`)

	_, err = execute(t, "", "run", "--store", "memory", "-c", "categories", "-r", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "open rows")
}

func TestSchema_ListsCollections(t *testing.T) {
	out, err := execute(t, "", "schema")
	require.NoError(t, err)

	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, "products")
	assert.Contains(t, out, "media")
}

func TestSchema_Fields(t *testing.T) {
	out, err := execute(t, "", "schema", "--collection", "categories", "--json")
	require.NoError(t, err)

	var fields []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &fields), out)
	require.NotEmpty(t, fields)
	assert.Equal(t, "id", fields[0].Name)
}

func TestSchema_UnknownCollection(t *testing.T) {
	_, err := execute(t, "", "schema", "-c", "ghost")
	assert.ErrorContains(t, err, "Code: REQ002")
}

func TestImportError(t *testing.T) {
	busy := importError(core.ErrTooManyImports)
	assert.Contains(t, busy.Error(), "(Code: IMP")
	assert.NotContains(t, busy.Error(), "cause:")

	unknown := importError(errors.New("disk on fire"))
	assert.Contains(t, unknown.Error(), "(Code: ERR000)")
	assert.Contains(t, unknown.Error(), "cause: disk on fire")
}
