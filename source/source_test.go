package source_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/lambda-feedback/procpool/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src source.Source) []models.Command {
	t.Helper()

	var cmds []models.Command
	for {
		cmd, err := src.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, source.ErrEndOfWork)
			return cmds
		}
		cmds = append(cmds, cmd)
	}
}

func TestSlice_YieldsInOrderThenEnds(t *testing.T) {
	src := source.NewSlice(
		models.Command{ID: "a", Op: "echo"},
		models.Command{ID: "b", Op: "echo"},
	)

	cmds := drain(t, src)
	require.Len(t, cmds, 2)
	assert.Equal(t, "a", cmds[0].ID)
	assert.Equal(t, "b", cmds[1].ID)

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, source.ErrEndOfWork)
}

func TestSlice_AssignsMissingIDs(t *testing.T) {
	cmds := drain(t, source.NewSlice(models.Command{Op: "pid"}))
	require.Len(t, cmds, 1)

	_, err := uuid.Parse(cmds[0].ID)
	assert.NoError(t, err)
}

func TestSlice_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.NewSlice(models.Command{Op: "pid"}).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_ParsesLinesUntilBlank(t *testing.T) {
	input := `{"id":"a","op":"echo","args":{"x":1}}
{"op":"sha256","args":"hello"}

{"id":"never","op":"echo"}
`
	src, err := source.NewReader(strings.NewReader(input))
	require.NoError(t, err)

	cmds := drain(t, src)
	require.Len(t, cmds, 2)
	assert.Equal(t, "a", cmds[0].ID)
	assert.JSONEq(t, `{"x":1}`, string(cmds[0].Args))
	assert.Equal(t, "sha256", cmds[1].Op)
	assert.NotEmpty(t, cmds[1].ID)
}

func TestReader_EndsAtEOF(t *testing.T) {
	src, err := source.NewReader(strings.NewReader(`{"op":"pid"}`))
	require.NoError(t, err)

	assert.Len(t, drain(t, src), 1)
}

func TestReader_RejectsInvalidCommands(t *testing.T) {
	for _, line := range []string{
		`{"args":1}`,
		`{"op":""}`,
		`{"op":"echo","code":"rm -rf /"}`,
		`[1,2]`,
		`not json`,
	} {
		src, err := source.NewReader(strings.NewReader(line + "\n"))
		require.NoError(t, err)

		_, err = src.Next(context.Background())
		assert.ErrorIs(t, err, source.ErrInvalidCommand, line)
	}
}

func TestFile_JSONLines_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"a\",\"op\":\"echo\"}\n\n{\"id\":\"b\",\"op\":\"pid\"}\n"), 0o600))

	src, err := source.NewFile(path)
	require.NoError(t, err)

	cmds := drain(t, src)
	require.Len(t, cmds, 2)
	assert.Equal(t, "b", cmds[1].ID)
}

func TestFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: a
  op: echo
  args:
    message: hello
- op: sleep
  args:
    duration: 10ms
`), 0o600))

	src, err := source.NewFile(path)
	require.NoError(t, err)

	cmds := drain(t, src)
	require.Len(t, cmds, 2)
	assert.Equal(t, "a", cmds[0].ID)
	assert.JSONEq(t, `{"message":"hello"}`, string(cmds[0].Args))
	assert.Equal(t, "sleep", cmds[1].Op)
	assert.NotEmpty(t, cmds[1].ID)
}

func TestFile_YAML_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yml")
	require.NoError(t, os.WriteFile(path, []byte("- id: a\n"), 0o600))

	_, err := source.NewFile(path)
	assert.ErrorIs(t, err, source.ErrInvalidCommand)
}

func TestFile_Missing(t *testing.T) {
	_, err := source.NewFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
