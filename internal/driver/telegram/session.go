package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// sessionRunner runs fn inside a connected, authorized Telegram session.
type sessionRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// userSession is the gotd client plus the login flow for a user account.
type userSession struct {
	client *gotdtelegram.Client
	cfg    Config
	logger *slog.Logger

	// prompt reads a login code when none is configured.
	prompt func() (string, error)
}

// newUserSession creates a gotd client that stores its session on disk and
// delivers updates to handler.
func newUserSession(cfg Config, handler gotdtelegram.UpdateHandler, logger *slog.Logger) (*userSession, error) {
	path, err := filepath.Abs(cfg.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("resolve session file %s: %w", cfg.SessionFile, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	client := gotdtelegram.NewClient(cfg.AppID, cfg.AppHash, gotdtelegram.Options{
		UpdateHandler:  handler,
		SessionStorage: &session.FileStorage{Path: path},
	})

	return &userSession{
		client: client,
		cfg:    cfg,
		logger: logger,
		prompt: func() (string, error) { return promptCode(os.Stdin, os.Stdout) },
	}, nil
}

// Run connects, logs in when the stored session is not authorized, then runs fn.
func (s *userSession) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.client.Run(ctx, func(runCtx context.Context) error {
		if err := s.login(runCtx); err != nil {
			return fmt.Errorf("telegram login: %w", err)
		}

		return fn(runCtx)
	})
	if err != nil {
		return fmt.Errorf("run telegram session: %w", err)
	}

	return nil
}

func (s *userSession) login(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.AuthTimeout))
	defer cancel()

	status, err := s.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		s.logger.InfoContext(ctx, "telegram session restored", "session_file", s.cfg.SessionFile)
		return nil
	}
	if s.cfg.Phone == "" {
		return fmt.Errorf("phone is required to log in a new session")
	}

	codes := auth.CodeAuthenticatorFunc(func(context.Context, *tg.AuthSentCode) (string, error) {
		if s.cfg.Code != "" {
			return s.cfg.Code, nil
		}
		return s.prompt()
	})
	var user auth.UserAuthenticator = auth.CodeOnly(s.cfg.Phone, codes)
	if s.cfg.Password != "" {
		user = auth.Constant(s.cfg.Phone, s.cfg.Password, codes)
	}

	if err := s.client.Auth().IfNecessary(ctx, auth.NewFlow(user, auth.SendCodeOptions{})); err != nil {
		return fmt.Errorf("user flow: %w", err)
	}
	s.logger.InfoContext(ctx, "telegram session authorized", "session_file", s.cfg.SessionFile)

	return nil
}

// promptCode asks for the login code on an interactive terminal.
func promptCode(in *os.File, out io.Writer) (string, error) {
	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat stdin: %w", err)
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return "", fmt.Errorf("no login code configured and stdin is not a terminal")
	}

	fmt.Fprint(out, "Enter Telegram login code: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read login code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("empty login code")
	}

	return code, nil
}
