package session

import (
	"errors"
	"testing"
	"time"

	"github.com/voxguide/voxguide/internal/engine"
	enginemock "github.com/voxguide/voxguide/internal/engine/mock"
	"github.com/voxguide/voxguide/internal/protocol"
	"github.com/voxguide/voxguide/pkg/audio"
	"github.com/voxguide/voxguide/pkg/provider"
	sttmock "github.com/voxguide/voxguide/pkg/provider/stt/mock"
	ttsmock "github.com/voxguide/voxguide/pkg/provider/tts/mock"
)

func startAudioFrame() protocol.StartAudio {
	return protocol.StartAudio{Encoding: "linear16", SampleRate: 16000}
}

func TestStartAudioRejectsContractMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.sess.StartAudio(protocol.StartAudio{Encoding: "opus", SampleRate: 48000}); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}

	errMsg := f.out.wait(t, protocol.TypeError, nil).(protocol.ErrorMessage)
	if errMsg.Code != "audio_contract" || errMsg.Retryable {
		t.Errorf("error = %+v, want non-retryable audio_contract", errMsg)
	}
	if len(f.stt.Calls) != 0 {
		t.Errorf("recognizer was called despite contract mismatch")
	}
}

func TestStartAudioStripsLanguageRegion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Recognizer.(*sttmock.Provider).Events = []provider.RecognitionEvent{
			{Type: provider.EventEnd, Reason: provider.ReasonStopped},
		}
	})
	frame := startAudioFrame()
	frame.Language = "en-US"
	if err := f.sess.StartAudio(frame); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}
	if got := f.stt.Calls[0].Req.Language; got != "en" {
		t.Errorf("language = %q, want region subtag stripped", got)
	}
}

func TestPartialTranscriptBargesIn(t *testing.T) {
	t.Parallel()

	feed := make(chan provider.RecognitionEvent, 8)
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Primary.(*ttsmock.Provider).Outcomes = []ttsmock.Outcome{{BlockUntilCancel: true}}
		d.Recognizer.(*sttmock.Provider).Feed = feed
	})

	f.sess.Speak("a long explanation")
	f.out.wait(t, protocol.TypeTTSStart, nil)

	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}
	feed <- provider.RecognitionEvent{Type: provider.EventStart, StreamID: "stt-a"}
	feed <- provider.RecognitionEvent{Type: provider.EventTranscript, StreamID: "stt-a", Text: "wait"}

	// The user speaking interrupts playback immediately.
	f.out.wait(t, protocol.TypeTTSEnd, func(p any) bool {
		return p.(protocol.TTSEnd).Reason == "stopped"
	})
	tr := f.out.wait(t, protocol.TypeTranscript, nil).(protocol.Transcript)
	if tr.IsFinal || tr.Text != "wait" {
		t.Errorf("transcript = %+v, want partial \"wait\"", tr)
	}

	feed <- provider.RecognitionEvent{Type: provider.EventEnd, StreamID: "stt-a", Reason: provider.ReasonStopped}
	close(feed)
}

func TestFinalTranscriptRunsTurnOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Engine.(*enginemock.Engine).Results = []engine.Result{
			{Text: "step two", State: engine.State{Status: engine.StatusActive, CurrentStepIndex: 1}},
		}
		d.Recognizer.(*sttmock.Provider).Events = []provider.RecognitionEvent{
			{Type: provider.EventTranscript, Text: "next", IsFinal: false},
			{Type: provider.EventTranscript, Text: "next", IsFinal: true},
			// The backend also reports completion; finalize must not run twice.
			{Type: provider.EventEnd, Reason: provider.ReasonComplete},
		}
	})
	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}

	f.out.wait(t, protocol.TypeSTTMetrics, nil)
	waitUntil(t, "engine received exactly one command", func() bool { return f.engine.CommandCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := f.engine.CommandCount(); got != 1 {
		t.Fatalf("engine commands = %d, want 1", got)
	}
	if f.engine.Commands[0] != "next" {
		t.Errorf("engine got %q, want canonical \"next\"", f.engine.Commands[0])
	}
}

func TestDuplicateFinalTranscriptIgnored(t *testing.T) {
	t.Parallel()

	feed := make(chan provider.RecognitionEvent, 8)
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Recognizer.(*sttmock.Provider).Feed = feed
	})
	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}
	feed <- provider.RecognitionEvent{Type: provider.EventStart, StreamID: "stt-a"}
	feed <- provider.RecognitionEvent{Type: provider.EventTranscript, StreamID: "stt-a", Text: "the light is red", IsFinal: true}
	waitUntil(t, "first final ran the turn", func() bool { return f.engine.CommandCount() == 1 })

	// A late duplicate must not reach the client or the engine.
	feed <- provider.RecognitionEvent{Type: provider.EventTranscript, StreamID: "stt-a", Text: "the light is red", IsFinal: true}
	feed <- provider.RecognitionEvent{Type: provider.EventEnd, StreamID: "stt-a", Reason: provider.ReasonComplete}
	close(feed)

	f.out.wait(t, protocol.TypeSTTMetrics, nil)
	finals := 0
	for _, p := range f.out.all(protocol.TypeTranscript) {
		if p.(protocol.Transcript).IsFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("final transcript frames = %d, want 1", finals)
	}
	if got := f.engine.CommandCount(); got != 1 {
		t.Errorf("engine commands = %d, want 1", got)
	}
}

func TestCompleteWithoutFinalPromotesLastPartial(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Recognizer.(*sttmock.Provider).Events = []provider.RecognitionEvent{
			{Type: provider.EventTranscript, Text: "go back", IsFinal: false},
			{Type: provider.EventEnd, Reason: provider.ReasonComplete},
		}
	})
	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}

	waitUntil(t, "engine received the promoted partial", func() bool { return f.engine.CommandCount() == 1 })
	if f.engine.Commands[0] != "back" {
		t.Errorf("engine got %q, want canonical \"back\"", f.engine.Commands[0])
	}
}

func TestNoSpeechNoticeFiresOnce(t *testing.T) {
	t.Parallel()

	feed := make(chan provider.RecognitionEvent, 4)
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Recognizer.(*sttmock.Provider).Feed = feed
	})
	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}
	feed <- provider.RecognitionEvent{Type: provider.EventStart, StreamID: "stt-a"}

	f.sess.EndAudio()

	notice := f.out.wait(t, protocol.TypeError, func(p any) bool {
		return p.(protocol.ErrorMessage).Code == "no_speech"
	}).(protocol.ErrorMessage)
	if !notice.Retryable {
		t.Errorf("no_speech notice not retryable: %+v", notice)
	}

	time.Sleep(60 * time.Millisecond)
	noSpeech := 0
	for _, p := range f.out.all(protocol.TypeError) {
		if p.(protocol.ErrorMessage).Code == "no_speech" {
			noSpeech++
		}
	}
	if noSpeech != 1 {
		t.Errorf("no_speech notices = %d, want 1", noSpeech)
	}
	if f.engine.CommandCount() != 0 {
		t.Errorf("empty stream reached the engine")
	}

	feed <- provider.RecognitionEvent{Type: provider.EventEnd, StreamID: "stt-a", Reason: provider.ReasonComplete}
	close(feed)
}

func TestStartAudioSupersedesPreviousStream(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Recognizer.(*sttmock.Provider).Events = []provider.RecognitionEvent{
			{Type: provider.EventEnd, Reason: provider.ReasonStopped},
		}
	})
	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("first StartAudio: %v", err)
	}
	firstSource := f.stt.Calls[0].Req.Source

	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("second StartAudio: %v", err)
	}
	if err := firstSource.Push([]byte("late")); !errors.Is(err, audio.ErrIngestClosed) {
		t.Errorf("push to superseded source = %v, want ErrIngestClosed", err)
	}
	if got := len(f.stt.Calls); got != 2 {
		t.Errorf("recognizer calls = %d, want 2", got)
	}
}

func TestRecognitionErrorIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Recognizer.(*sttmock.Provider).Events = []provider.RecognitionEvent{
			{
				Type:   provider.EventEnd,
				Reason: provider.ReasonError,
				Err:    provider.Errf("recognizer", provider.CodeStreamTimeout, "stalled"),
			},
		}
	})
	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}

	errMsg := f.out.wait(t, protocol.TypeError, func(p any) bool {
		return p.(protocol.ErrorMessage).Code == string(provider.CodeStreamTimeout)
	}).(protocol.ErrorMessage)
	if !errMsg.Retryable {
		t.Errorf("stream_timeout reported as non-retryable")
	}
}

func TestRecognitionMetricsEmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Recognizer.(*sttmock.Provider).Events = []provider.RecognitionEvent{
			{Type: provider.EventTranscript, Text: "hello", IsFinal: false},
			{Type: provider.EventTranscript, Text: "hello there", IsFinal: true},
			{Type: provider.EventEnd, Reason: provider.ReasonComplete},
		}
	})
	if err := f.sess.StartAudio(startAudioFrame()); err != nil {
		t.Fatalf("StartAudio: %v", err)
	}

	m := f.out.wait(t, protocol.TypeSTTMetrics, nil).(protocol.STTMetrics)
	if m.Partials != 1 || m.NoSpeech {
		t.Errorf("stt_metrics = %+v", m)
	}
	if m.Provider != "recognizer" {
		t.Errorf("provider = %q", m.Provider)
	}
}
