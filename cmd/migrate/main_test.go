package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/onnwee/twirc/testutil"
)

func TestRequiresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	for _, args := range [][]string{nil, {"up"}, {"down"}, {"version"}} {
		cmd := newRootCmd(&bytes.Buffer{})
		cmd.SetArgs(args)
		if err := cmd.Execute(); !errors.Is(err, errNoDSN) {
			t.Errorf("%v: error = %v, want errNoDSN", args, err)
		}
	}
}

func TestUpThenVersion(t *testing.T) {
	dsn := testutil.PostgresDSN(t)
	t.Setenv("DB_DSN", dsn)

	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"up"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("up: %v", err)
	}

	out := &bytes.Buffer{}
	cmd = newRootCmd(out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := out.String(); got != "version=2 dirty=false\n" {
		t.Errorf("version output = %q", got)
	}
}
