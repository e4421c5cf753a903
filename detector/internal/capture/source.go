package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/messaging"
)

// Handler receives frames one at a time.
type Handler func(ctx context.Context, f Frame)

// Source delivers captured frames to a Handler until ctx is cancelled or the
// source is exhausted. Handler calls are never concurrent.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// maxFrameLine bounds a single JSON frame line.
const maxFrameLine = 64 * 1024

// ReaderSource reads one JSON frame per line, e.g. from a capture file or
// stdin. Malformed lines are skipped.
type ReaderSource struct {
	r      io.Reader
	logger *slog.Logger
}

func NewReaderSource(r io.Reader, logger *slog.Logger) *ReaderSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaderSource{r: r, logger: logger}
}

// Run returns nil at end of input. A line longer than maxFrameLine is
// skipped like any other malformed frame.
func (s *ReaderSource) Run(ctx context.Context, h Handler) error {
	br := bufio.NewReaderSize(s.r, maxFrameLine)

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		raw, tooLong, err := readFrameLine(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frames: %w", err)
		}
		line++
		if tooLong {
			s.logger.Debug("skipping oversized frame", slog.Int("line", line),
				slog.Int("max_bytes", maxFrameLine), logging.ErrorClass(logging.ClassParse))
			continue
		}
		if len(raw) == 0 {
			continue
		}
		f, err := ParseFrame(raw)
		if err != nil {
			s.logger.Debug("skipping malformed frame", slog.Int("line", line),
				logging.Error(err), logging.ErrorClass(logging.ClassParse))
			continue
		}
		h(ctx, f)
	}
}

// readFrameLine returns the next line without its terminator. An oversized
// line is consumed up to its newline and reported with tooLong set. The
// returned slice is only valid until the next read.
func readFrameLine(r *bufio.Reader) (raw []byte, tooLong bool, err error) {
	raw, isPrefix, err := r.ReadLine()
	if err != nil {
		return nil, false, err
	}
	for isPrefix {
		tooLong = true
		if _, isPrefix, err = r.ReadLine(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, true, nil
			}
			return nil, false, err
		}
	}
	if tooLong {
		return nil, true, nil
	}
	return raw, false, nil
}

// NATSSource subscribes to captured frames on the message bus.
type NATSSource struct {
	sub     messaging.Subscriber
	subject string
	logger  *slog.Logger
}

// NewNATSSource subscribes on subject, or messaging.SubjectCaptureFrames when
// subject is empty.
func NewNATSSource(sub messaging.Subscriber, subject string, logger *slog.Logger) *NATSSource {
	if subject == "" {
		subject = messaging.SubjectCaptureFrames
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSource{sub: sub, subject: subject, logger: logger}
}

// Run blocks until ctx is cancelled. A single subscription delivers messages
// serially, so h is never called concurrently.
func (s *NATSSource) Run(ctx context.Context, h Handler) error {
	subscription, err := s.sub.Subscribe(s.subject, func(_ context.Context, msg *messaging.Message) error {
		f, err := ParseFrame(msg.Data)
		if err != nil {
			s.logger.Debug("skipping malformed frame", slog.String("subject", msg.Subject),
				logging.Error(err), logging.ErrorClass(logging.ClassParse))
			return nil
		}
		h(ctx, f)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}

	s.logger.Info("capture source subscribed", slog.String("subject", s.subject))
	<-ctx.Done()
	return subscription.Unsubscribe()
}
