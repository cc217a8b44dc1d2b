package audio

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	stdout, stderr, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(stdout)) != "out" || strings.TrimSpace(string(stderr)) != "err" {
		t.Errorf("stdout = %q, stderr = %q", stdout, stderr)
	}

	if _, _, err := (ExecRunner{}).Run(context.Background(), "sh", "-c", "exit 3"); err == nil {
		t.Error("non-zero exit should be an error")
	}
}
