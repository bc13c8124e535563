// Command mockmodels serves the model server endpoints used by the http
// engine (/transcribe, /translate, /synthesize) backed by the offline stub,
// for local development without real models.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/speech"
)

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type textResponse struct {
	Text string `json:"text"`
}

func newMux(stub *speech.Stub, codec *audio.Codec, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		pcm, err := codec.Decode(r.Context(), data, "wav")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		language := r.FormValue("language")
		text, err := stub.Transcribe(r.Context(), pcm, language)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		logger.Info("Transcription request",
			slog.String("filename", header.Filename),
			slog.Int("audio_bytes", len(data)),
			slog.String("language", language),
			slog.String("sample_rate", r.FormValue("sample_rate")),
			slog.String("text", text))

		writeJSON(w, textResponse{Text: text})
	})

	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		text, err := stub.Translate(r.Context(), req.Text, req.SourceLanguage, req.TargetLanguage)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		logger.Info("Translation request",
			slog.String("source", req.SourceLanguage),
			slog.String("target", req.TargetLanguage),
			slog.String("text", text))

		writeJSON(w, textResponse{Text: text})
	})

	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		pcm, err := stub.Synthesize(r.Context(), req.Text, req.Language)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		wav, err := codec.Encode(pcm)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		logger.Info("Synthesis request",
			slog.String("language", req.Language),
			slog.Duration("audio", pcm.Duration()))

		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time per stage")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	stub := &speech.Stub{Delay: *delay}
	codec := audio.NewCodec(audio.CanonicalSampleRate, nil)

	logger.Info("Mock model server starting",
		slog.String("address", *addr),
		slog.String("hint", "set translation.engine: http and translation.endpoint: http://localhost"+*addr))

	if err := http.ListenAndServe(*addr, newMux(stub, codec, logger)); err != nil {
		logger.Error("Server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
