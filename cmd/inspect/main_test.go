package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onnwee/twirc/kv"
	"github.com/onnwee/twirc/testutil"
)

func seed(t *testing.T, dir string) {
	t.Helper()
	s, err := kv.Open(kv.Options{Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	kept := testutil.Add(1, 7, "still here")
	gone := testutil.Add(1, 8, "rude words")
	require.NoError(t, s.ApplyAdd(ctx, kept.Message))
	require.NoError(t, s.ApplyAdd(ctx, gone.Message))
	require.NoError(t, s.ApplyModeration(ctx, testutil.Moderation(1, 8, 10*time.Minute)))
	require.NoError(t, s.Close())
}

func TestInspectPrintsTables(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out := &bytes.Buffer{}
	cmd := newRootCmd(out)
	cmd.SetArgs([]string{"--dir", dir, "--colours=false"})
	require.NoError(t, cmd.Execute())

	got := out.String()
	require.Contains(t, got, "still here")
	require.Contains(t, got, "rude words")
	require.Contains(t, got, "timeout")
	require.Contains(t, got, "10m0s")
	require.Contains(t, got, "MESSAGE ID")
}

func TestInspectHistoryOnly(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	out := &bytes.Buffer{}
	cmd := newRootCmd(out)
	cmd.SetArgs([]string{"--dir", dir, "--table", "history"})
	require.NoError(t, cmd.Execute())
	require.NotContains(t, out.String(), "still here")
	require.Contains(t, out.String(), "timeout")
}

func TestInspectUnknownTable(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir)

	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", dir, "--table", "emotes"})
	cmd.SetErr(&bytes.Buffer{})
	require.Error(t, cmd.Execute())
}
