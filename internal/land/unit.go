package land

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
)

// CommandUnitRunner runs a shell command as the unit-test step
type CommandUnitRunner struct {
	Dir     string
	Command string
	Stdout  io.Writer
	Stderr  io.Writer
}

// RunUnit implements UnitRunner
func (r CommandUnitRunner) RunUnit(ctx context.Context) error {
	if r.Command == "" {
		return errors.New("no unit test command configured")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", r.Command)
	cmd.Dir = r.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", r.Command, err)
	}
	return nil
}

// ScriptHook returns a pre-push hook that runs the executable at path, if
// there is one, with the push request as JSON on stdin
func ScriptHook(path, dir string, stdout, stderr io.Writer) PrePushHook {
	return func(ctx context.Context, req PushRequest) error {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			return nil
		}
		payload, err := json.Marshal(req)
		if err != nil {
			return err
		}
		cmd := exec.CommandContext(ctx, path)
		cmd.Dir = dir
		cmd.Stdin = bytes.NewReader(payload)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.Env = append(os.Environ(),
			"ARCSTACK_REMOTE="+req.Remote,
			"ARCSTACK_ONTO="+req.Onto,
			fmt.Sprintf("ARCSTACK_SHADOW=%t", req.Shadow),
		)
		return cmd.Run()
	}
}
