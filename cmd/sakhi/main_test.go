package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/manosakhi/internal/lexicon"
	"github.com/ashureev/manosakhi/internal/resolver"
)

func offline(t *testing.T) {
	t.Helper()
	t.Setenv("HUGGINGFACE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("LEXICON_PATH", "")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAskCrisisJSON(t *testing.T) {
	offline(t)

	out, err := execute(t, "", "ask", "--json", "--seed", "7", "I want to kill myself")
	require.NoError(t, err)

	var reply resolver.Reply
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	assert.Equal(t, resolver.SourceCrisis, reply.Source)
	assert.True(t, reply.Signal.SelfHarm)
	assert.NotEmpty(t, reply.Text)
}

func TestAskFallbackFromStdin(t *testing.T) {
	offline(t)

	out, err := execute(t, "hello there\n", "ask", "--json")
	require.NoError(t, err)

	var reply resolver.Reply
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	assert.Equal(t, resolver.SourceFallback, reply.Source)
	assert.Contains(t, lexicon.Default().Fallback.Default, reply.Text)
}

func TestAskEmptyMessage(t *testing.T) {
	offline(t)

	_, err := execute(t, "   \n", "ask")
	assert.EqualError(t, err, "message is empty")
}

func TestClassify(t *testing.T) {
	offline(t)

	out, err := execute(t, "", "classify", "MY", "PARTNER", "BEATS", "ME")
	require.NoError(t, err)

	var got classification
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.SelfHarm)
	assert.True(t, got.Violence)
	assert.Equal(t, lexicon.Default().Version, got.LexiconVersion)
}

func TestLexiconDefaultRoundTripsThroughCheck(t *testing.T) {
	out, err := execute(t, "", "lexicon", "default")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	out, err = execute(t, "", "lexicon", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (version "+lexicon.Default().Version)
}

func TestLexiconCheckRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"\"\n"), 0o600))

	_, err := execute(t, "", "lexicon", "check", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version is required")
}

func TestLexiconSchema(t *testing.T) {
	out, err := execute(t, "", "lexicon", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.NotEmpty(t, schema)
}
