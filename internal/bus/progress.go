package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/textwave/textwave/internal/convert"
	"github.com/textwave/textwave/internal/protocol"
)

// ProgressPublisher forwards job progress onto the bus so other processes
// (a GUI shell, a dashboard) can follow a conversion. Publishing is buffered
// inside the NATS client, so OnProgress never blocks the orchestrator.
type ProgressPublisher struct {
	client *Client
	input  string
	log    *slog.Logger
}

func NewProgressPublisher(client *Client, inputPath string, log *slog.Logger) *ProgressPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &ProgressPublisher{client: client, input: inputPath, log: log}
}

func (p *ProgressPublisher) OnProgress(prog convert.Progress) {
	msg := protocol.JobProgress{
		JobID:        prog.JobID,
		Input:        p.input,
		Status:       prog.Status,
		Completed:    prog.Completed,
		Total:        prog.Total,
		Percent:      prog.Percent(),
		BytesWritten: prog.BytesWritten,
		ElapsedMS:    prog.Elapsed.Milliseconds(),
		ETAMS:        prog.ETA.Milliseconds(),
		Timestamp:    time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("marshal progress event", "error", err)
		return
	}
	if err := p.client.Publish(protocol.SubjectJobProgress, data); err != nil {
		p.log.Warn("publish progress event", "error", err)
	}
}

// PublishDone announces a terminal job state on the bus.
func (p *ProgressPublisher) PublishDone(job *convert.Job, jobErr error) {
	msg := protocol.JobDone{
		JobID:     job.ID,
		Input:     job.InputPath,
		Status:    job.Status().String(),
		Timestamp: time.Now().UTC(),
	}
	if job.Status() == convert.StatusSucceeded {
		msg.Output = job.OutputPath
	}
	if jobErr != nil {
		msg.Error = jobErr.Error()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("marshal done event", "error", err)
		return
	}
	if err := p.client.Publish(protocol.SubjectJobDone, data); err != nil {
		p.log.Warn("publish done event", "error", err)
	}
}
