package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Queue 命令队列的最小依赖
type Queue interface {
	Enqueue(ctx context.Context, serial string, cmds ...string) error
}

// Recorder 入队计数回调，kind 为命令类别
type Recorder interface {
	CommandsQueued(kind string, n int)
}

type nopRecorder struct{}

func (nopRecorder) CommandsQueued(string, int) {}

// Service 构造命令并整批入队
type Service struct {
	builder *Builder
	queue   Queue
	rec     Recorder
	logger  *zap.Logger
}

func NewService(builder *Builder, queue Queue, rec Recorder, logger *zap.Logger) *Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{builder: builder, queue: queue, rec: rec, logger: logger}
}

// BeforeEnqueue 在命令入队前调用，返回错误则放弃入队
type BeforeEnqueue func(cmds []Command) error

func (s *Service) dispatch(ctx context.Context, serial, kind string, cmds []Command) ([]Command, error) {
	return s.dispatchWith(ctx, serial, kind, cmds, nil)
}

func (s *Service) dispatchWith(ctx context.Context, serial, kind string, cmds []Command, before BeforeEnqueue) ([]Command, error) {
	if before != nil {
		if err := before(cmds); err != nil {
			return nil, err
		}
	}
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	if err := s.queue.Enqueue(ctx, serial, lines...); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	s.rec.CommandsQueued(kind, len(cmds))
	s.logger.Info("commands queued",
		zap.String("serial", serial),
		zap.String("kind", kind),
		zap.Int("count", len(cmds)),
		zap.Int("first_id", cmds[0].ID))
	return cmds, nil
}

func (s *Service) OpenDoor(ctx context.Context, serial string, door, seconds int) ([]Command, error) {
	c, err := s.builder.DoorOpen(door, seconds)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, serial, "door_open", []Command{c})
}

func (s *Service) Control(ctx context.Context, serial, suffix string) ([]Command, error) {
	c, err := s.builder.Control(suffix)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, serial, "control", []Command{c})
}

func (s *Service) Passage(ctx context.Context, serial string, on bool) ([]Command, error) {
	return s.dispatch(ctx, serial, "passage", []Command{s.builder.Passage(on)})
}

// AddCard 返回下发的命令与实际 PIN
func (s *Service) AddCard(ctx context.Context, serial string, req CardRequest) ([]Command, string, error) {
	cmds, pin, err := s.builder.AddCard(req)
	if err != nil {
		return nil, "", err
	}
	cmds, err = s.dispatch(ctx, serial, "add_card", cmds)
	if err != nil {
		return nil, "", err
	}
	return cmds, pin, nil
}

func (s *Service) DeleteUser(ctx context.Context, serial, pin string) ([]Command, error) {
	return s.dispatch(ctx, serial, "delete_user", s.builder.DeleteUser(pin))
}

func (s *Service) Query(ctx context.Context, serial string, specs ...QuerySpec) ([]Command, error) {
	return s.QueryWith(ctx, serial, nil, specs...)
}

// QueryWith 同 Query，before 可用于在设备取走命令前登记回执等待
func (s *Service) QueryWith(ctx context.Context, serial string, before BeforeEnqueue, specs ...QuerySpec) ([]Command, error) {
	if len(specs) == 0 {
		return nil, ErrNoQueryTable
	}
	return s.dispatchWith(ctx, serial, "query", s.builder.Query(specs...), before)
}
