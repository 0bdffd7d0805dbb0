package metrics

import (
	"errors"
	"testing"
)

func TestDiagnostics_Subscribe(t *testing.T) {
	d := NewDiagnostics()
	ch, cancel := d.Subscribe(4)

	d.Report(Event{Source: "host", Name: "out.csv", Op: "chunk", Err: errors.New("disk full")})

	ev := <-ch
	if ev.Name != "out.csv" || ev.Op != "chunk" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Time.IsZero() {
		t.Error("Report should stamp the event time")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// reporting after unsubscribe must not panic
	d.Report(Event{Name: "late"})
}

func TestDiagnostics_SlowSubscriberDoesNotBlock(t *testing.T) {
	d := NewDiagnostics()
	_, cancel := d.Subscribe(1)
	defer cancel()

	for i := 0; i < 10; i++ {
		d.Report(Event{Name: "x"})
	}
}

func TestDiagnostics_Recent(t *testing.T) {
	d := NewDiagnostics()
	for i := 0; i < recentLimit+5; i++ {
		d.Report(Event{Op: "chunk"})
	}
	if got := len(d.Recent()); got != recentLimit {
		t.Errorf("len(Recent()) = %d, want %d", got, recentLimit)
	}
}

func TestDiagnostics_NilReport(t *testing.T) {
	var d *Diagnostics
	d.Report(Event{Name: "ignored"})
}
