package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// ErrCueNotFound 提示音文件不存在
var ErrCueNotFound = errors.New("audio cue not found")

// CommandPlayer 通过外部播放器命令渲染提示音（如 mpg123 -q <file>）
type CommandPlayer struct {
	command string
	args    []string
	logger  *zap.Logger
}

// NewCommandPlayer 创建命令行播放器
func NewCommandPlayer(command string, args []string, logger *zap.Logger) *CommandPlayer {
	return &CommandPlayer{
		command: command,
		args:    append([]string(nil), args...),
		logger:  logger,
	}
}

// Play 播放 cue 文件，阻塞直到播放器退出
func (p *CommandPlayer) Play(ctx context.Context, cue string) error {
	if _, err := os.Stat(cue); err != nil {
		return fmt.Errorf("%w: %s", ErrCueNotFound, cue)
	}

	args := append(append([]string(nil), p.args...), cue)
	cmd := exec.CommandContext(ctx, p.command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		p.logger.Warn("Audio player exited with error",
			zap.String("command", p.command),
			zap.String("cue", cue),
			zap.ByteString("output", output),
			zap.Error(err),
		)
		return fmt.Errorf("failed to play %s: %w", cue, err)
	}

	p.logger.Debug("Audio cue rendered", zap.String("cue", cue))
	return nil
}
