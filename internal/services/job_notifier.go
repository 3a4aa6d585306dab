package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/realtime/bus"
	"github.com/echoform/echoform-backend/internal/sse"
)

// JobNotifier publishes job lifecycle events to the owner's SSE channel.
// Works for both synthesis jobs and training jobs; the payload carries the
// job type so clients can route.
type JobNotifier interface {
	JobCreated(userID, jobID uuid.UUID, jobType string, job any)
	JobProgress(userID, jobID uuid.UUID, jobType, stage string, progress float64, message string)
	JobFailed(userID, jobID uuid.UUID, jobType, stage, errorMessage string)
	JobDone(userID, jobID uuid.UUID, jobType string, job any)
	JobCancelled(userID, jobID uuid.UUID, jobType string)
}

type jobNotifier struct {
	log *logger.Logger
	hub *sse.Hub
	bus bus.Bus
}

// NewJobNotifier fans out through the bus when one is configured so events
// reach subscribers on every process; otherwise it broadcasts locally.
func NewJobNotifier(log *logger.Logger, hub *sse.Hub, b bus.Bus) JobNotifier {
	return &jobNotifier{
		log: log.With("service", "JobNotifier"),
		hub: hub,
		bus: b,
	}
}

func (n *jobNotifier) emit(msg sse.Message) {
	if n.bus != nil {
		err := n.bus.Publish(context.Background(), msg)
		if err == nil {
			return
		}
		n.log.Warn("Bus publish failed; falling back to local broadcast", "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}

func (n *jobNotifier) JobCreated(userID, jobID uuid.UUID, jobType string, job any) {
	n.emit(sse.Message{
		Channel: userID.String(),
		Event:   sse.EventJobCreated,
		Data: map[string]any{
			"job_id":   jobID,
			"job_type": jobType,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobProgress(userID, jobID uuid.UUID, jobType, stage string, progress float64, message string) {
	n.emit(sse.Message{
		Channel: userID.String(),
		Event:   sse.EventJobProgress,
		Data: map[string]any{
			"job_id":   jobID,
			"job_type": jobType,
			"stage":    stage,
			"progress": progress,
			"message":  message,
		},
	})
}

func (n *jobNotifier) JobFailed(userID, jobID uuid.UUID, jobType, stage, errorMessage string) {
	n.emit(sse.Message{
		Channel: userID.String(),
		Event:   sse.EventJobFailed,
		Data: map[string]any{
			"job_id":   jobID,
			"job_type": jobType,
			"stage":    stage,
			"error":    errorMessage,
		},
	})
}

func (n *jobNotifier) JobDone(userID, jobID uuid.UUID, jobType string, job any) {
	n.emit(sse.Message{
		Channel: userID.String(),
		Event:   sse.EventJobDone,
		Data: map[string]any{
			"job_id":   jobID,
			"job_type": jobType,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobCancelled(userID, jobID uuid.UUID, jobType string) {
	n.emit(sse.Message{
		Channel: userID.String(),
		Event:   sse.EventJobCancelled,
		Data: map[string]any{
			"job_id":   jobID,
			"job_type": jobType,
		},
	})
}
