package pipeline

import "time"

// Diagnostics receives progress events from a run. Methods may be called
// from several goroutines at once and must not block.
type Diagnostics interface {
	StateChanged(from, to State)
	StageCompleted(stage State, elapsed time.Duration)
	AssetResolved(href string, ok bool)
	ChapterComposed(id string, missing bool)
}

// NopDiagnostics discards every event.
type NopDiagnostics struct{}

func (NopDiagnostics) StateChanged(from, to State)                       {}
func (NopDiagnostics) StageCompleted(stage State, elapsed time.Duration) {}
func (NopDiagnostics) AssetResolved(href string, ok bool)                {}
func (NopDiagnostics) ChapterComposed(id string, missing bool)           {}
