package prompt

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ent0n29/voiceclone/internal/audio"
	"github.com/ent0n29/voiceclone/internal/jobs"
	"github.com/ent0n29/voiceclone/internal/profiles"
	"github.com/ent0n29/voiceclone/internal/storage"
	"github.com/ent0n29/voiceclone/internal/synthesis"
)

func toneWAV(t *testing.T, seconds float64, rate, channels int) []byte {
	t.Helper()
	frames := int(seconds * float64(rate))
	s := make([]float64, frames*channels)
	for i := 0; i < frames; i++ {
		v := 0.4 * math.Sin(2*math.Pi*180*float64(i)/float64(rate))
		if i%rate < rate/4 {
			v *= 0.05 // a quieter stretch so the gate has a floor to find
		}
		for ch := 0; ch < channels; ch++ {
			s[i*channels+ch] = v
		}
	}
	buf, err := audio.Generate(s, rate, channels, 16)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return buf
}

type fixture struct {
	svc      *Service
	files    *storage.Local
	profiles *profiles.InMemoryStore
	synth    *synthesis.Mock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	store := profiles.NewInMemoryStore()
	synth := synthesis.NewMock()
	svc, err := NewService(Deps{Files: files, Profiles: store, Synthesizer: synth}, Config{})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return fixture{svc: svc, files: files, profiles: store, synth: synth}
}

func (f fixture) storedPrompt(t *testing.T, p profiles.Profile) audio.Format {
	t.Helper()
	buf, err := storage.ReadFile(context.Background(), f.files, p.PromptPath)
	if err != nil {
		t.Fatalf("ReadFile(prompt) error = %v", err)
	}
	format, err := audio.Parse(buf)
	if err != nil {
		t.Fatalf("Parse(prompt) error = %v", err)
	}
	return format
}

func TestNewServiceRequiresStores(t *testing.T) {
	if _, err := NewService(Deps{Profiles: profiles.NewInMemoryStore()}, Config{}); err == nil {
		t.Fatalf("NewService() without files should fail")
	}
	files, _ := storage.NewLocal(t.TempDir())
	if _, err := NewService(Deps{Files: files}, Config{}); err == nil {
		t.Fatalf("NewService() without profiles should fail")
	}
}

func TestCreatePromptFromFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	files := [][]byte{toneWAV(t, 4, 48000, 2), toneWAV(t, 4, 16000, 1), toneWAV(t, 1, 16000, 1)}
	meta := []RecordingMeta{{ID: "a", Quality: jobs.Quality{Score: 70}}, {ID: "b", Quality: jobs.Quality{Score: 90}}}
	id, err := f.svc.CreatePromptFromFiles(ctx, files, "Grandma", "u1", meta)
	if err != nil {
		t.Fatalf("CreatePromptFromFiles() error = %v", err)
	}

	p, err := f.svc.GetVoice(ctx, id)
	if err != nil {
		t.Fatalf("GetVoice() error = %v", err)
	}
	if p.Status != profiles.StatusReady || p.TrainingProgress != 100 || p.Name != "Grandma" {
		t.Fatalf("profile = %+v, want ready", p)
	}
	if p.QualityScore != 80 {
		t.Fatalf("QualityScore = %v, want 80 (short take excluded)", p.QualityScore)
	}
	if math.Abs(p.TotalInputDurationSeconds-8) > 1e-6 {
		t.Fatalf("TotalInputDurationSeconds = %v, want 8", p.TotalInputDurationSeconds)
	}

	format := f.storedPrompt(t, p)
	if format.SampleRate != 24000 || format.Channels != 1 || format.BitDepth != 16 {
		t.Fatalf("stored prompt = %+v, want 24kHz mono 16-bit", format)
	}
	if math.Abs(format.Duration()-8) > 0.01 {
		t.Fatalf("prompt duration = %v, want about 8", format.Duration())
	}
	if p.SampleURL == "" || len(f.synth.Calls()) != 1 {
		t.Fatalf("SampleURL = %q, synth calls = %d; want a preview sample", p.SampleURL, len(f.synth.Calls()))
	}
}

func TestCreatePromptFromFilesRejectsShortTakes(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreatePromptFromFiles(context.Background(), [][]byte{toneWAV(t, 2, 16000, 1)}, "x", "u1", nil)
	if !errors.Is(err, audio.ErrNoValidRecordings) {
		t.Fatalf("CreatePromptFromFiles() error = %v, want ErrNoValidRecordings", err)
	}
	if list, _ := f.svc.ListVoices(context.Background(), "u1", 0); len(list) != 0 {
		t.Fatalf("ListVoices() = %d profiles, want none", len(list))
	}
}

func TestCreatePromptFromSingleFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.CreatePromptFromSingleFile(ctx, toneWAV(t, 5, 44100, 2), "Solo", "u1")
	if err != nil {
		t.Fatalf("CreatePromptFromSingleFile() error = %v", err)
	}
	p, _ := f.svc.GetVoice(ctx, id)
	if p.Status != profiles.StatusReady {
		t.Fatalf("Status = %s, want ready", p.Status)
	}
	if format := f.storedPrompt(t, p); math.Abs(format.Duration()-5) > 0.01 {
		t.Fatalf("prompt duration = %v, want about 5", format.Duration())
	}
}

func TestShortSinglePromptFailsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreatePromptFromSingleFile(ctx, toneWAV(t, 2, 16000, 1), "Short", "u1")
	if !errors.Is(err, audio.ErrNoValidRecordings) {
		t.Fatalf("error = %v, want ErrNoValidRecordings", err)
	}
	list, _ := f.svc.ListVoices(ctx, "u1", 0)
	if len(list) != 1 || list[0].Status != profiles.StatusError || list[0].Error == "" {
		t.Fatalf("profiles = %+v, want one in error state", list)
	}
	if ok, _ := f.files.Exists(ctx, list[0].PromptPath); ok {
		t.Fatalf("prompt for failed profile still stored")
	}
}

func TestSynthesisFailureMarksProfileError(t *testing.T) {
	f := newFixture(t)
	f.synth.Err = &synthesis.Error{Kind: synthesis.KindQuotaExhausted, Detail: "out of credits"}
	ctx := context.Background()

	_, err := f.svc.CreatePromptFromSingleFile(ctx, toneWAV(t, 4, 16000, 1), "Quota", "u1")
	if synthesis.KindOf(err) != synthesis.KindQuotaExhausted {
		t.Fatalf("error = %v, want quota exhausted", err)
	}
	list, _ := f.svc.ListVoices(ctx, "u1", 0)
	if len(list) != 1 || list[0].Error != jobs.CodeQuotaExhausted.Message() {
		t.Fatalf("profiles = %+v, want quota error message", list)
	}
}

func TestPassthroughDecoderRejectsCompressedInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PrepareRecordings(context.Background(), []Upload{{Data: []byte("OggS\x00\x02not really")}})
	if !errors.Is(err, audio.ErrInvalidContainer) {
		t.Fatalf("PrepareRecordings() error = %v, want ErrInvalidContainer", err)
	}
}

func TestPrepareRecordingsMeasuresAudio(t *testing.T) {
	f := newFixture(t)
	recs, err := f.svc.PrepareRecordings(context.Background(), []Upload{
		{Data: toneWAV(t, 3.5, 16000, 1)},
		{Data: toneWAV(t, 4, 16000, 1), Meta: &RecordingMeta{ID: "take-2", DurationSeconds: 99, Quality: jobs.Quality{Score: 42}}},
	})
	if err != nil {
		t.Fatalf("PrepareRecordings() error = %v", err)
	}
	if math.Abs(recs[0].DurationSeconds-3.5) > 1e-6 || recs[0].Quality.Score <= 0 {
		t.Fatalf("recs[0] = %+v", recs[0])
	}
	if recs[1].ID != "take-2" || recs[1].DurationSeconds != 4 || recs[1].Quality.Score != 42 {
		t.Fatalf("recs[1] = %+v, want measured duration and caller quality", recs[1])
	}
}

func TestAssemblePromptIsPure(t *testing.T) {
	f := newFixture(t)
	one := toneWAV(t, 1, 16000, 1)
	got, err := f.svc.AssemblePrompt([][]byte{one})
	if err != nil || &got[0] != &one[0] {
		t.Fatalf("AssemblePrompt(single) should return the input, err = %v", err)
	}
	if _, err := f.svc.AssemblePrompt(nil); !errors.Is(err, audio.ErrNoValidRecordings) {
		t.Fatalf("AssemblePrompt(nil) error = %v, want ErrNoValidRecordings", err)
	}
}

func TestSynthesizeAndDeleteVoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.CreatePromptFromSingleFile(ctx, toneWAV(t, 4, 16000, 1), "Talker", "u1")
	if err != nil {
		t.Fatalf("CreatePromptFromSingleFile() error = %v", err)
	}

	res, err := f.svc.Synthesize(ctx, id, "hello there", synthesis.Options{})
	if err != nil || len(res.Audio) == 0 {
		t.Fatalf("Synthesize() = %d bytes, %v", len(res.Audio), err)
	}
	if _, err := f.svc.Synthesize(ctx, "missing", "hi", synthesis.Options{}); !errors.Is(err, profiles.ErrNotFound) {
		t.Fatalf("Synthesize(missing) error = %v, want ErrNotFound", err)
	}

	p, _ := f.svc.GetVoice(ctx, id)
	if err := f.svc.DeleteVoice(ctx, id); err != nil {
		t.Fatalf("DeleteVoice() error = %v", err)
	}
	if ok, _ := f.files.Exists(ctx, p.PromptPath); ok {
		t.Fatalf("prompt still stored after delete")
	}
	if _, err := f.svc.GetVoice(ctx, id); !errors.Is(err, profiles.ErrNotFound) {
		t.Fatalf("GetVoice(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestSynthesizeRequiresReadyProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.profiles.Save(ctx, profiles.Profile{ID: "p1", OwnerID: "u1", Status: profiles.StatusTraining})
	if _, err := f.svc.Synthesize(ctx, "p1", "hi", synthesis.Options{}); !errors.Is(err, ErrProfileNotReady) {
		t.Fatalf("Synthesize(training) error = %v, want ErrProfileNotReady", err)
	}
}

func TestServiceDrivesVoiceJob(t *testing.T) {
	f := newFixture(t)
	m := jobs.NewManager(f.svc, jobs.Options{})
	recs, err := f.svc.PrepareRecordings(context.Background(), []Upload{
		{Data: toneWAV(t, 4, 16000, 1)},
		{Data: toneWAV(t, 3, 22050, 1)},
	})
	if err != nil {
		t.Fatalf("PrepareRecordings() error = %v", err)
	}
	job, err := m.Submit(jobs.SubmitRequest{Name: "Queued", OwnerID: "u1", Recordings: recs})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	var got jobs.Job
	for time.Now().Before(deadline) {
		got, _ = m.Get(job.ID)
		if got.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got.Status != jobs.StatusCompleted || got.Result == nil {
		t.Fatalf("job = %+v, want completed", got)
	}
	p, err := f.svc.GetVoice(context.Background(), got.Result.VoiceID)
	if err != nil || p.Status != profiles.StatusReady {
		t.Fatalf("voice %s = %+v, %v; want ready", got.Result.VoiceID, p, err)
	}
	if got.Result.SampleURL != p.SampleURL || p.SampleURL == "" {
		t.Fatalf("SampleURL = %q, profile has %q", got.Result.SampleURL, p.SampleURL)
	}
}
