// Package cli drives a session from a line-oriented terminal.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rocketscienceinc/crictactoe/internal/entity"
	"github.com/rocketscienceinc/crictactoe/internal/session"
)

var (
	errQuit           = errors.New("quit")
	errUnknownCommand = errors.New("unknown command, type help")
	errUsage          = errors.New("wrong arguments")
)

type controller interface {
	CreateRoom(ctx context.Context, mode entity.GameMode) (string, error)
	JoinRoom(ctx context.Context, roomID string) (*entity.RoomState, error)
	SelectCell(row, col int) (*session.Question, error)
	SubmitAnswer(ctx context.Context, answer string) (*session.AnswerResult, error)
	CancelQuestion() error
	LeaveRoom(ctx context.Context) error
	View() session.View
	Events() <-chan session.Event
}

type catalog interface {
	Suggest(query string, limit int) []string
	TeamName(code string) string
	CountryName(code string) string
}

type handler func(ctx context.Context, args []string) error

type Server struct {
	logger     *slog.Logger
	controller controller
	catalog    catalog
	out        io.Writer
	handlers   map[string]handler
}

func New(logger *slog.Logger, controller controller, catalog catalog, out io.Writer) *Server {
	server := &Server{
		logger:     logger.With("component", "cli"),
		controller: controller,
		catalog:    catalog,
		out:        out,
		handlers:   make(map[string]handler),
	}

	server.handlers["create"] = server.handleCreate
	server.handlers["join"] = server.handleJoin
	server.handlers["pick"] = server.handlePick
	server.handlers["answer"] = server.handleAnswer
	server.handlers["cancel"] = server.handleCancel
	server.handlers["suggest"] = server.handleSuggest
	server.handlers["board"] = server.handleBoard
	server.handlers["leave"] = server.handleLeave
	server.handlers["help"] = server.handleHelp
	server.handlers["quit"] = func(context.Context, []string) error { return errQuit }

	return server
}

// Start - reads commands from in until quit, end of input or ctx is done, printing events as they arrive.
// When in is an io.Closer it is closed on return to release the reader; a plain reader is only
// released once it yields a line or ends.
func (that *Server) Start(ctx context.Context, in io.Reader) error {
	log := that.logger.With("method", "Start")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if closer, ok := in.(io.Closer); ok {
		context.AfterFunc(ctx, func() { _ = closer.Close() })
	}

	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	that.printf("Welcome, %s. Type help for commands.\n", that.controller.View().UserID)

	events := that.controller.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			that.printEvent(event)
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}

			if err := that.dispatch(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				log.Debug("command failed", "line", line, "error", err)
				that.printf("error: %v\n", err)
			}
		}
	}
}

func (that *Server) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	handler, ok := that.handlers[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownCommand, fields[0])
	}

	return handler(ctx, fields[1:])
}

func (that *Server) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(that.out, format, args...); err != nil {
		that.logger.Error("failed to write output", "error", err)
	}
}
