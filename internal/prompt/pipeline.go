// Package prompt turns raw voice recordings into a stored voice prompt and a
// ready voice profile. Service implements the stages run by jobs.Manager and
// the synchronous entry points used outside the job queue.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/voiceclone/internal/audio"
	"github.com/ent0n29/voiceclone/internal/jobs"
	"github.com/ent0n29/voiceclone/internal/observability"
	"github.com/ent0n29/voiceclone/internal/profiles"
	"github.com/ent0n29/voiceclone/internal/storage"
	"github.com/ent0n29/voiceclone/internal/synthesis"
)

// DefaultTarget is the layout every stored prompt is converted to.
var DefaultTarget = audio.Target{SampleRate: 24000, Channels: 1, BitDepth: 16}

const defaultPreviewText = "Hello! This is a preview of your cloned voice."

var ErrProfileNotReady = errors.New("voice profile is not ready")

// Upload is one recording as received from a client. Meta is optional; when
// absent the quality is computed from the audio.
type Upload struct {
	Data []byte
	Meta *RecordingMeta
}

// RecordingMeta is caller-supplied metadata for an upload.
type RecordingMeta struct {
	ID              string       `json:"id"`
	DurationSeconds float64      `json:"duration_seconds"`
	Quality         jobs.Quality `json:"quality"`
}

type Config struct {
	Target              audio.Target
	Gate                audio.GateConfig
	HighPassHz          float64
	Resampler           audio.Resampler
	MinRecordingSeconds float64
	// PreviewText is rendered through the synthesizer during validation when a
	// synthesizer is configured. Set SkipPreview to disable.
	PreviewText string
	SkipPreview bool
}

type Deps struct {
	Decoder     Decoder
	Files       storage.FileStore
	Profiles    profiles.Store
	Synthesizer synthesis.Synthesizer
	Metrics     *observability.Metrics
}

type Service struct {
	decoder     Decoder
	files       storage.FileStore
	profiles    profiles.Store
	synth       synthesis.Synthesizer
	metrics     *observability.Metrics
	conditioner audio.Conditioner
	assembler   audio.Assembler
	converter   audio.Converter
	target      audio.Target
	minSeconds  float64
	previewText string
	now         func() time.Time
}

func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Files == nil {
		return nil, errors.New("prompt: file store is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("prompt: profile store is required")
	}
	if deps.Decoder == nil {
		deps.Decoder = PassthroughDecoder{}
	}
	if cfg.Target == (audio.Target{}) {
		cfg.Target = DefaultTarget
	}
	if cfg.MinRecordingSeconds <= 0 {
		cfg.MinRecordingSeconds = jobs.DefaultMinRecordingSeconds
	}
	preview := strings.TrimSpace(cfg.PreviewText)
	if preview == "" {
		preview = defaultPreviewText
	}
	if cfg.SkipPreview {
		preview = ""
	}
	converter := audio.Converter{Resampler: cfg.Resampler}
	return &Service{
		decoder:     deps.Decoder,
		files:       deps.Files,
		profiles:    deps.Profiles,
		synth:       deps.Synthesizer,
		metrics:     deps.Metrics,
		conditioner: audio.Conditioner{Gate: cfg.Gate, HighPassHz: cfg.HighPassHz},
		assembler:   audio.Assembler{Converter: converter, CrossfadeMS: audio.DefaultCrossfadeMS},
		converter:   converter,
		target:      cfg.Target,
		minSeconds:  cfg.MinRecordingSeconds,
		previewText: preview,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// PrepareRecordings decodes uploads to WAV and attaches duration and quality
// so they can be submitted as a job. Duration is always measured from the
// decoded audio; caller-supplied quality is kept when present.
func (s *Service) PrepareRecordings(ctx context.Context, uploads []Upload) ([]jobs.Recording, error) {
	out := make([]jobs.Recording, 0, len(uploads))
	for i, up := range uploads {
		wav, err := s.decoder.Decode(ctx, up.Data)
		if err != nil {
			return nil, fmt.Errorf("recording %d: %w", i+1, err)
		}
		analysis, err := audio.Analyze(wav)
		if err != nil {
			return nil, fmt.Errorf("recording %d: %w", i+1, err)
		}
		rec := jobs.Recording{
			DurationSeconds: analysis.DurationSeconds,
			Quality: jobs.Quality{
				Score:           analysis.Score,
				Issues:          analysis.Issues,
				Recommendations: analysis.Recommendations,
			},
			Audio: wav,
		}
		if up.Meta != nil {
			rec.ID = up.Meta.ID
			if up.Meta.Quality.Score > 0 || len(up.Meta.Quality.Issues) > 0 {
				rec.Quality = up.Meta.Quality
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// AssemblePrompt combines already-decoded recordings into one prompt. It does
// no I/O and applies no conditioning.
func (s *Service) AssemblePrompt(recordings [][]byte) ([]byte, error) {
	return s.assembler.Combine(recordings)
}

// CreatePromptFromSingleFile builds a profile from one upload using the light
// high-pass path, bypassing the job queue.
func (s *Service) CreatePromptFromSingleFile(ctx context.Context, data []byte, name, ownerID string) (string, error) {
	recs, err := s.PrepareRecordings(ctx, []Upload{{Data: data}})
	if err != nil {
		return "", err
	}
	return s.runAll(ctx, &jobs.Work{
		JobID:      uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		Recordings: recs,
		Light:      true,
	})
}

// CreatePromptFromFiles builds a profile from several uploads with the full
// enhancement chain, bypassing the job queue. Recordings shorter than the
// minimum are excluded.
func (s *Service) CreatePromptFromFiles(ctx context.Context, files [][]byte, name, ownerID string, meta []RecordingMeta) (string, error) {
	uploads := make([]Upload, len(files))
	for i, data := range files {
		uploads[i] = Upload{Data: data}
		if i < len(meta) {
			m := meta[i]
			uploads[i].Meta = &m
		}
	}
	recs, err := s.PrepareRecordings(ctx, uploads)
	if err != nil {
		return "", err
	}
	kept := recs[:0]
	for _, r := range recs {
		if r.DurationSeconds >= s.minSeconds {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("%w: every recording is shorter than %.0f seconds", audio.ErrNoValidRecordings, s.minSeconds)
	}
	return s.runAll(ctx, &jobs.Work{
		JobID:      uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		Recordings: kept,
	})
}

func (s *Service) runAll(ctx context.Context, w *jobs.Work) (string, error) {
	if strings.TrimSpace(w.OwnerID) == "" {
		return "", errors.New("owner_id is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		w.Name = "Untitled voice"
	}
	for _, stage := range jobs.Stages {
		if err := s.RunStage(ctx, stage, w); err != nil {
			s.Fail(context.WithoutCancel(ctx), w, err)
			return "", err
		}
	}
	return w.ProfileID, nil
}

// RunStage implements jobs.Pipeline.
func (s *Service) RunStage(ctx context.Context, stage jobs.Stage, w *jobs.Work) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch stage {
	case jobs.StageUploading:
		return s.upload(ctx, w)
	case jobs.StagePreprocessing:
		return s.preprocess(w)
	case jobs.StageTraining:
		return s.train(ctx, w)
	case jobs.StageValidation:
		return s.validate(ctx, w)
	case jobs.StageFinalizing:
		return s.finalize(ctx, w)
	default:
		return fmt.Errorf("prompt: unknown stage %q", stage)
	}
}

// upload decodes every recording into w.Buffers.
func (s *Service) upload(ctx context.Context, w *jobs.Work) error {
	if len(w.Recordings) == 0 {
		return audio.ErrNoValidRecordings
	}
	w.Buffers = make([][]byte, 0, len(w.Recordings))
	for i, r := range w.Recordings {
		wav, err := s.decoder.Decode(ctx, r.Audio)
		if err != nil {
			return fmt.Errorf("recording %d: %w", i+1, err)
		}
		if _, err := audio.Parse(wav); err != nil {
			return fmt.Errorf("recording %d: %w", i+1, err)
		}
		w.Buffers = append(w.Buffers, wav)
	}
	return nil
}

func (s *Service) preprocess(w *jobs.Work) error {
	condition := s.conditioner.Enhance
	if w.Light {
		condition = s.conditioner.Preprocess
	}
	for i, buf := range w.Buffers {
		out, err := condition(buf)
		if err != nil {
			return fmt.Errorf("recording %d: %w", i+1, err)
		}
		w.Buffers[i] = out
	}
	return nil
}

// train assembles the prompt and records a profile in the training state.
func (s *Service) train(ctx context.Context, w *jobs.Work) error {
	combined, err := s.assembler.Combine(w.Buffers)
	if err != nil {
		return err
	}
	prompt, _, err := s.converter.Convert(combined, s.target)
	if err != nil {
		return err
	}
	w.Prompt = prompt

	now := s.now()
	id := uuid.NewString()
	p := profiles.Profile{
		ID:                        id,
		OwnerID:                   w.OwnerID,
		Name:                      w.Name,
		Status:                    profiles.StatusTraining,
		PromptPath:                promptPath(id),
		TrainingProgress:          jobs.StageTraining.Progress(),
		TotalInputDurationSeconds: w.TotalDuration(),
		QualityScore:              jobs.QualityScore(w.Recordings),
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	w.ProfileID = id
	w.PromptPath = p.PromptPath
	return nil
}

// validate checks the assembled prompt, writes it to storage and renders a
// preview sample when a synthesizer is configured.
func (s *Service) validate(ctx context.Context, w *jobs.Work) error {
	f, err := audio.Parse(w.Prompt)
	if err != nil {
		return err
	}
	if d := f.Duration(); d < s.minSeconds {
		return fmt.Errorf("%w: assembled prompt is %.2fs, need at least %.0fs", audio.ErrNoValidRecordings, d, s.minSeconds)
	}
	if s.metrics != nil {
		s.metrics.PromptDuration.Observe(f.Duration())
	}

	if err := storage.WriteFile(ctx, s.files, w.PromptPath, w.Prompt); err != nil {
		return err
	}
	w.Prompt = nil

	if s.synth == nil || s.previewText == "" {
		return nil
	}
	local, cleanup, err := storage.Materialize(ctx, s.files, w.PromptPath)
	if err != nil {
		return err
	}
	defer cleanup()
	res, err := s.synth.Synthesize(ctx, local, s.previewText, synthesis.Options{SampleRate: s.target.SampleRate})
	if err != nil {
		return err
	}
	path := samplePath(w.ProfileID)
	if err := storage.WriteFile(ctx, s.files, path, res.Audio); err != nil {
		return err
	}
	w.SampleURL = s.files.Locate(path)
	return nil
}

func (s *Service) finalize(ctx context.Context, w *jobs.Work) error {
	p, err := s.profiles.Get(ctx, w.ProfileID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	p.SampleURL = w.SampleURL
	p, err = p.Transition(profiles.StatusReady, s.now())
	if err != nil {
		return err
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	log.Printf("voice profile %s ready (owner=%s, %.1fs input)", p.ID, p.OwnerID, p.TotalInputDurationSeconds)
	return nil
}

// Fail implements jobs.Pipeline. A profile created during training moves to
// the error state and its stored files are removed.
func (s *Service) Fail(ctx context.Context, w *jobs.Work, cause error) {
	w.Prompt = nil
	if w.ProfileID == "" {
		return
	}
	p, err := s.profiles.Get(ctx, w.ProfileID)
	if err != nil {
		log.Printf("voice profile %s: load after failure: %v", w.ProfileID, err)
		return
	}
	_, msg := jobs.Classify(cause)
	next, err := p.Transition(profiles.StatusError, s.now())
	if err != nil {
		log.Printf("voice profile %s: %v", p.ID, err)
		return
	}
	next.Error = msg
	if err := s.profiles.Save(ctx, next); err != nil {
		log.Printf("voice profile %s: save after failure: %v", p.ID, err)
	}
	for _, path := range []string{promptPath(p.ID), samplePath(p.ID)} {
		if err := s.files.Delete(ctx, path); err != nil {
			log.Printf("voice profile %s: delete %s: %v", p.ID, path, err)
		}
	}
}

func (s *Service) GetVoice(ctx context.Context, id string) (profiles.Profile, error) {
	return s.profiles.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) ListVoices(ctx context.Context, ownerID string, limit int) ([]profiles.Profile, error) {
	return s.profiles.ListByOwner(ctx, strings.TrimSpace(ownerID), limit)
}

// DeleteVoice removes a profile and its stored prompt and sample.
func (s *Service) DeleteVoice(ctx context.Context, id string) error {
	p, err := s.profiles.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	for _, path := range []string{promptPath(p.ID), samplePath(p.ID)} {
		if err := s.files.Delete(ctx, path); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	return s.profiles.Delete(ctx, p.ID)
}

// Synthesize renders text in a ready profile's voice.
func (s *Service) Synthesize(ctx context.Context, profileID, text string, opts synthesis.Options) (synthesis.Result, error) {
	if s.synth == nil {
		return synthesis.Result{}, &synthesis.Error{Kind: synthesis.KindConfiguration, Detail: "no synthesizer configured"}
	}
	p, err := s.profiles.Get(ctx, strings.TrimSpace(profileID))
	if err != nil {
		return synthesis.Result{}, err
	}
	if p.Status != profiles.StatusReady {
		return synthesis.Result{}, fmt.Errorf("%w: %s is %s", ErrProfileNotReady, p.ID, p.Status)
	}
	local, cleanup, err := storage.Materialize(ctx, s.files, p.PromptPath)
	if err != nil {
		return synthesis.Result{}, fmt.Errorf("load prompt: %w", err)
	}
	defer cleanup()
	return s.synth.Synthesize(ctx, local, text, opts)
}

func promptPath(profileID string) string { return "voices/" + profileID + "/prompt.wav" }

func samplePath(profileID string) string { return "voices/" + profileID + "/sample.wav" }

var _ jobs.Pipeline = (*Service)(nil)
