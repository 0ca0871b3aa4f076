package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"supportchat": run,
	}))
}

func TestScript(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			// Keep the host's credentials out of the scripts.
			for _, k := range []string{"OPENAI_API_KEY", "OPENAI_ASSISTANT_ID", "GITHUB_TOKEN"} {
				env.Setenv(k, "")
			}
			return nil
		},
	})
}
