package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// progress serializes reports from concurrent workers and keeps the
// reported fraction from moving backwards.
type progress struct {
	mu   sync.Mutex
	sink domain.ProgressSink
	last float64
	done int
}

func newProgress(sink domain.ProgressSink) *progress {
	return &progress{sink: sink}
}

func (p *progress) report(fraction float64, message string) {
	if p.sink == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(fraction, message)
}

// imageDone counts one more finished image out of total and reports
// (done)/(total+2).
func (p *progress) imageDone(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.sink == nil {
		return
	}
	p.emit(float64(p.done)/float64(total+2), fmt.Sprintf(msgAnalyzing, p.done, total))
}

// stage forwards a stage transition to sinks that implement domain.StageSink
func (p *progress) stage(ev domain.EventType, message string) {
	stages, ok := p.sink.(domain.StageSink)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stages.Stage(ev, message)
}

func (p *progress) emit(fraction float64, message string) {
	if fraction < p.last {
		fraction = p.last
	}
	if fraction > 1 {
		fraction = 1
	}
	p.last = fraction
	p.sink.Report(fraction, message)
}

// ChannelSink forwards progress as stream events. Reports are dropped when
// the channel is full so a slow reader never stalls the run.
type ChannelSink struct {
	events chan<- domain.StreamEvent
}

// NewChannelSink creates a sink writing to events
func NewChannelSink(events chan<- domain.StreamEvent) *ChannelSink {
	return &ChannelSink{events: events}
}

// Report implements domain.ProgressSink
func (s *ChannelSink) Report(fraction float64, message string) {
	s.send(domain.StreamEvent{
		Type:      domain.EventProgress,
		Fraction:  fraction,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// Stage implements domain.StageSink
func (s *ChannelSink) Stage(stage domain.EventType, message string) {
	s.send(domain.StreamEvent{
		Type:      stage,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (s *ChannelSink) send(event domain.StreamEvent) {
	select {
	case s.events <- event:
	default:
	}
}

// LogSink writes progress to the logger at debug level
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a logging sink
func NewLogSink(logger *observability.Logger) *LogSink {
	if logger == nil {
		logger = observability.Nop()
	}
	return &LogSink{logger: logger}
}

// Report implements domain.ProgressSink
func (s *LogSink) Report(fraction float64, message string) {
	s.logger.Debug().Float64("fraction", fraction).Msg(message)
}

// Stage implements domain.StageSink
func (s *LogSink) Stage(stage domain.EventType, message string) {
	s.logger.Info().Str("stage", string(stage)).Msg(message)
}

// MultiSink fans a report out to several sinks
type MultiSink []domain.ProgressSink

// Report implements domain.ProgressSink
func (m MultiSink) Report(fraction float64, message string) {
	for _, s := range m {
		if s != nil {
			s.Report(fraction, message)
		}
	}
}

// Stage implements domain.StageSink for the members that support it
func (m MultiSink) Stage(stage domain.EventType, message string) {
	for _, s := range m {
		if ss, ok := s.(domain.StageSink); ok {
			ss.Stage(stage, message)
		}
	}
}
