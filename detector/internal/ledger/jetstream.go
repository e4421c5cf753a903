package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/airhawk/common/audit"
	"github.com/telhawk-systems/airhawk/common/logging"
	"github.com/telhawk-systems/airhawk/common/messaging"
	"github.com/telhawk-systems/airhawk/detector/internal/model"

	natsclient "github.com/telhawk-systems/airhawk/common/messaging/nats"
)

// JetStream appends signed records to a JetStream stream. Each record is
// published on ledger.deauth.<mac-hex> with its event ID as the message ID,
// so a retried append that already reached the stream is not stored twice.
type JetStream struct {
	js     *natsclient.JetStreamClient
	stream string
	signer *audit.Signer
	logger *slog.Logger
}

// NewJetStream creates or updates the ledger stream. An empty stream name
// uses messaging.StreamDeauthLedger.
func NewJetStream(ctx context.Context, js *natsclient.JetStreamClient, stream string, signer *audit.Signer, logger *slog.Logger) (*JetStream, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := natsclient.DeauthLedgerStream
	if stream != "" {
		cfg.Name = stream
	}
	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create ledger stream: %w", err)
	}
	logger.Info("ledger stream ready", slog.String("stream", cfg.Name))

	return &JetStream{js: js, stream: cfg.Name, signer: signer, logger: logger}, nil
}

// Sign returns ev as a signed LedgerRecord.
func (l *JetStream) Sign(ev model.LogEvent) model.LedgerRecord {
	return model.LedgerRecord{LogEvent: ev, Signature: l.signer.Sign(ev.ID, ev.LoggedAt, signedFields(ev)...)}
}

// Verify reports whether rec's signature matches its content.
func (l *JetStream) Verify(rec model.LedgerRecord) bool {
	return l.signer.Verify(rec.Signature, rec.ID, rec.LoggedAt, signedFields(rec.LogEvent)...)
}

func signedFields(ev model.LogEvent) []string {
	return []string{ev.MAC, ev.Signal, ev.Channel, ev.Message}
}

// Append publishes ev and waits for the stream acknowledgement. The returned
// transaction ID is "<stream>:<sequence>".
func (l *JetStream) Append(ctx context.Context, ev model.LogEvent) (string, error) {
	data, err := json.Marshal(l.Sign(ev))
	if err != nil {
		return "", fmt.Errorf("marshal ledger record: %w", err)
	}

	ack, err := l.js.PublishSync(ctx, messaging.LedgerSubject(ev.MAC), data, jetstream.WithMsgID(ev.ID))
	if err != nil {
		return "", fmt.Errorf("publish ledger record: %w", err)
	}
	txID := fmt.Sprintf("%s:%d", ack.Stream, ack.Sequence)
	if ack.Duplicate {
		l.logger.Debug("ledger record already stored", logging.LogID(ev.ID), logging.TxID(txID))
	}
	return txID, nil
}

// TotalCount returns the number of messages in the ledger stream.
func (l *JetStream) TotalCount(ctx context.Context) (int64, error) {
	state, err := l.js.StreamState(ctx, l.stream)
	if err != nil {
		return 0, err
	}
	return int64(state.Msgs), nil
}

// Recent reads back the newest n records. Records that fail to decode are
// skipped with a warning.
func (l *JetStream) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := l.js.LastMessages(ctx, l.stream, n)
	if err != nil && len(msgs) == 0 {
		return nil, err
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		var rec model.LedgerRecord
		if uerr := json.Unmarshal(msg.Data, &rec); uerr != nil {
			l.logger.Warn("undecodable ledger record", slog.Uint64("sequence", msg.Sequence),
				logging.Error(uerr), logging.ErrorClass(logging.ClassLedger))
			continue
		}
		entries = append(entries, Entry{
			TxID:     fmt.Sprintf("%s:%d", l.stream, msg.Sequence),
			Record:   rec,
			Verified: l.Verify(rec),
		})
	}
	return entries, err
}
