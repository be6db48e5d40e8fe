// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/pipeline"
)

// Acknowledgement is returned as soon as an upload is accepted.
const Acknowledgement = "Audio uploaded! Processing transcription..."

const (
	msgNoAudio      = "No audio file uploaded"
	msgTooLarge     = "Audio file too large"
	msgUploadFailed = "Upload failed"
	msgShuttingDown = "Server is shutting down"

	// multipartOverhead covers boundaries, headers and small form fields.
	multipartOverhead = 64 << 10
)

// UploadResponse is the 202 body for an accepted upload.
type UploadResponse struct {
	SessionID       string `json:"sessionId"`
	Acknowledgement string `json:"acknowledgement"`
	Message         string `json:"message"`
	Size            int64  `json:"size"`
	Status          string `json:"status"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api.upload")
	limit := s.deps.Pipeline.MaxAudioBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	// Parts beyond 1 MiB spill to temp files; RemoveAll cleans them up.
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		writeError(w, r, http.StatusBadRequest, msgNoAudio)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgNoAudio)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		writeError(w, r, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}
	audio, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		logger.Warn().Err(err).Msg("reading uploaded audio failed")
		writeError(w, r, http.StatusBadRequest, msgNoAudio)
		return
	}

	sess, err := s.deps.Pipeline.Submit(r.Context(), pipeline.Upload{
		Audio:     audio,
		Filename:  header.Filename,
		PatientID: strings.TrimSpace(r.FormValue("patientId")),
	})
	if err != nil {
		var ve *pipeline.ValidationError
		switch {
		case errors.As(err, &ve) && ve.TooLarge:
			writeError(w, r, http.StatusRequestEntityTooLarge, msgTooLarge)
		case errors.As(err, &ve):
			writeError(w, r, http.StatusBadRequest, msgNoAudio)
		case errors.Is(err, pipeline.ErrShuttingDown):
			writeError(w, r, http.StatusServiceUnavailable, msgShuttingDown)
		default:
			logger.Error().Err(err).Str(log.FieldEvent, "upload.failed").Msg("upload could not be accepted")
			writeError(w, r, http.StatusInternalServerError, msgUploadFailed)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, UploadResponse{
		SessionID:       sess.ID,
		Acknowledgement: Acknowledgement,
		Message:         Acknowledgement,
		Size:            sess.AudioSize,
		Status:          string(sess.Status),
	})
}
