package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

const playerWaitDelay = time.Second

// Player plays encoded audio by piping it into an external player process.
type Player struct {
	command string
	args    []string
}

// NewPlayer builds a player; an empty command selects ffplay. A bare ffplay
// gets the arguments needed to play stdin without a window.
func NewPlayer(command string, args ...string) *Player {
	if command == "" {
		command = "ffplay"
	}
	if len(args) == 0 && filepath.Base(command) == "ffplay" {
		args = []string{"-nodisp", "-autoexit", "-loglevel", "error", "-i", "-"}
	}
	return &Player{command: command, args: args}
}

// Play blocks until playback ends or ctx is cancelled.
func (p *Player) Play(ctx context.Context, clip []byte) error {
	if len(clip) == 0 {
		return errors.New("empty audio clip")
	}

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Stdin = bytes.NewReader(clip)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = playerWaitDelay

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player %s: %w: %s", p.command, err, trimOutput(stderr))
	}
	return nil
}
