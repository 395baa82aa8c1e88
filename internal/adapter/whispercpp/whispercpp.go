// Package whispercpp adapts a local whisper.cpp inference server into an
// orchestrator.Adapter for audio transcription. IsLocal reports true, so the
// registry orders this adapter after every remote candidate capable of the
// same request kind (spec.md §4.7). Grounded on
// MrWong99-glyphoxa/pkg/provider/stt/whisper's WAV-encode-then-POST-multipart
// call to a whisper.cpp server's /inference endpoint — the only example
// wiring an on-device transcription engine — adapted here from a streaming
// session abstraction to BaseAdapter's one-shot request/response pipeline.
package whispercpp

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

const bitsPerSample = 16

type Adapter struct {
	adapter.BaseAdapter
	serverURL  string
	sampleRate int
}

// New points the adapter at a running whisper.cpp HTTP server (e.g.
// "http://localhost:8080"), configured via
// AdditionalSettings["serverUrl"]/["sampleRate"].
func New(base adapter.BaseAdapter) (*Adapter, error) {
	serverURL, _ := base.Config.AdditionalSettings["serverUrl"].(string)
	if serverURL == "" {
		return nil, fmt.Errorf("whispercpp: additionalSettings.serverUrl is required")
	}
	sampleRate, _ := base.Config.AdditionalSettings["sampleRate"].(int)
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Adapter{BaseAdapter: base, serverURL: serverURL, sampleRate: sampleRate}, nil
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	wav := encodeWAV(req.AudioBytes, a.sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: write wav data: %w", err)
	}
	lang := req.Context.Language
	if lang == "" {
		lang = "en"
	}
	if err := mw.WriteField("language", lang); err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: write language field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.serverURL+"/inference", &body)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return adapter.WireResult{}, fmt.Errorf("whispercpp: parse json response: %w", err)
	}

	return adapter.WireResult{Content: result.Text, Model: a.Config.Model}, nil
}

// encodeWAV wraps raw 16-bit signed little-endian PCM in a RIFF/WAV
// container, the shape whisper.cpp's /inference endpoint accepts.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}
