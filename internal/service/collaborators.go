package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
	"github.com/mlindqvist/feedback-platform/session-engine/internal/telemetry"
)

// NatsRiskSignalSource requests the collected risk-layer inputs from the
// fraud-signal collaborator over NATS request/reply.
type NatsRiskSignalSource struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNatsRiskSignalSource(nc *nats.Conn, timeout time.Duration) *NatsRiskSignalSource {
	return &NatsRiskSignalSource{nc: nc, timeout: timeout}
}

type riskSignalRequest struct {
	SessionID  string   `json:"session_id"`
	BusinessID string   `json:"business_id"`
	LocationID *string  `json:"location_id,omitempty"`
	DeviceHash string   `json:"device_hash"`
	Transcript string   `json:"transcript"`
	Language   string   `json:"language"`
	Amount     *float64 `json:"amount,omitempty"`
	Items      []string `json:"items,omitempty"`
}

func (src *NatsRiskSignalSource) Collect(ctx context.Context, s *models.Session) (*models.RiskSignals, error) {
	req := riskSignalRequest{
		SessionID:  s.ID,
		BusinessID: s.BusinessID,
		LocationID: s.LocationID,
		DeviceHash: s.DeviceHash,
		Transcript: s.Transcript,
		Language:   s.TranscriptLanguage,
		Amount:     s.TransactionAmount,
		Items:      s.TransactionItems,
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.timeout)
		defer cancel()
	}
	msg, err := src.nc.RequestWithContext(ctx, "fraud.signals", reqJSON)
	if err != nil {
		return nil, fmt.Errorf("fraud signal request for %s: %w", s.ID, err)
	}

	var signals models.RiskSignals
	if err := json.Unmarshal(msg.Data, &signals); err != nil {
		return nil, fmt.Errorf("decode fraud signals for %s: %w", s.ID, err)
	}
	return &signals, nil
}

// KafkaTransferSink publishes transfer instructions for the payment rail,
// keyed by session ID so the rail can deduplicate redeliveries.
type KafkaTransferSink struct {
	writer *kafka.Writer
}

func NewKafkaTransferSink(writer *kafka.Writer) *KafkaTransferSink {
	return &KafkaTransferSink{writer: writer}
}

func (s *KafkaTransferSink) Transfer(ctx context.Context, ins *models.TransferInstruction) error {
	insJSON, err := json.Marshal(ins)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ins.SessionID),
		Value: insJSON,
	})
}

// SubscribeRecordingSignals wires the capture/transcription collaborator's
// NATS subjects into the state machine.
func (o *Orchestrator) SubscribeRecordingSignals(nc *nats.Conn) error {
	if _, err := nc.Subscribe("feedback.recording.start", func(msg *nats.Msg) {
		var sig models.RecordingSignal
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			telemetry.Logger.Error("Error unmarshaling recording start signal", zap.Error(err))
			return
		}
		if err := o.StartRecording(context.Background(), sig.SessionID); err != nil {
			telemetry.Logger.Error("Error handling recording start",
				zap.String("session_id", sig.SessionID), zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := nc.Subscribe("feedback.recording.transcript", func(msg *nats.Msg) {
		var sig models.RecordingSignal
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			telemetry.Logger.Error("Error unmarshaling transcript signal", zap.Error(err))
			return
		}
		if err := o.TranscriptReady(context.Background(), &sig); err != nil {
			telemetry.Logger.Error("Error handling transcript delivery",
				zap.String("session_id", sig.SessionID), zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := nc.Subscribe("feedback.recording.abort", func(msg *nats.Msg) {
		var sig models.RecordingSignal
		if err := json.Unmarshal(msg.Data, &sig); err != nil {
			telemetry.Logger.Error("Error unmarshaling abort signal", zap.Error(err))
			return
		}
		if err := o.Abort(context.Background(), sig.SessionID, sig.Reason); err != nil {
			telemetry.Logger.Error("Error handling recording abort",
				zap.String("session_id", sig.SessionID), zap.Error(err))
		}
	}); err != nil {
		return err
	}

	telemetry.Logger.Info("Subscribed to recording lifecycle signals")
	return nil
}
