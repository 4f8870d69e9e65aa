package httpbridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypete/safesound/pkg/app"
	"github.com/soypete/safesound/pkg/audio"
	"github.com/soypete/safesound/pkg/config"
	"github.com/soypete/safesound/pkg/database"
	"github.com/soypete/safesound/pkg/depcheck"
	"github.com/soypete/safesound/pkg/share"
	"github.com/soypete/safesound/pkg/stt"
	"github.com/soypete/safesound/pkg/transcribe"
)

type fakeTranscriber struct {
	mu   sync.Mutex
	text string
	last stt.Options
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, opts stt.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = opts
	return f.text, nil
}

type testEnv struct {
	server  *Server
	http    *httptest.Server
	client  *http.Client
	jar     http.CookieJar
	tr      *fakeTranscriber
	copied  []string
	copyErr error
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, withHistory, nil)
}

// newTestEnvWithConfig lets a test adjust the configuration before the
// server is built.
func newTestEnvWithConfig(t *testing.T, withHistory bool, configure func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Whisper.FFmpegPath = "safesound-no-such-ffmpeg"
	if configure != nil {
		configure(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := &fakeTranscriber{text: "the quick brown fox"}

	appCtx := &AppContext{
		Config:      cfg,
		App:         app.Default(),
		Transcriber: tr,
		Checker:     depcheck.NewChecker(cfg.Whisper),
		Logger:      logger,
	}

	var history transcribe.History
	if withHistory {
		db, err := database.New(&database.Config{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "history.db")})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, db.Migrate(context.Background()))
		store := database.NewTranscriptStore(db)
		appCtx.Database = db
		appCtx.History = store
		history = store
	}
	appCtx.Service = transcribe.NewService(tr, audio.NewConverter(cfg.Whisper.FFmpegPath), history, logger,
		transcribe.Options{TempDir: t.TempDir()})

	server, err := NewServer(appCtx, Options{UploadDir: t.TempDir()})
	require.NoError(t, err)

	env := &testEnv{server: server, tr: tr}
	server.copyText = func(text string) error {
		if text == "" {
			return share.ErrEmpty
		}
		env.copied = append(env.copied, text)
		return env.copyErr
	}

	env.http = httptest.NewServer(server.Handler())
	t.Cleanup(env.http.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.jar = jar
	env.client = &http.Client{Jar: jar}

	// Loading the page creates the session cookie.
	resp, err := env.client.Get(env.http.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	return env
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.http.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) upload(t *testing.T, name string, data []byte) *http.Response {
	t.Helper()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("audio", name)
		if err == nil {
			_, err = part.Write(data)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := e.client.Post(e.http.URL+"/api/upload", mw.FormDataContentType(), pr)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func wavBytes(t *testing.T, seconds int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, audio.WritePCM16WAV(path, make([]byte, 16000*2*seconds), 16000, 1))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.get(t, HealthPath)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	env.server.MarkReady()
	resp = env.get(t, HealthPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	page := string(body)

	assert.Contains(t, page, "<title>SafeSound+</title>")
	assert.Contains(t, page, `<option value="base" selected>base</option>`)
	assert.Contains(t, page, "Translate to English")
	assert.Contains(t, page, `accept=".wav,.mp3,.m4a,.ogg"`)

	u, _ := url.Parse(env.http.URL)
	assert.NotEmpty(t, env.jar.Cookies(u))

	assert.Equal(t, http.StatusNotFound, env.get(t, "/nope").StatusCode)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, false)
	env.server.CheckDependencies(context.Background())

	resp := env.get(t, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode(t, resp)

	assert.Equal(t, "fake", status["backend"])
	assert.Equal(t, false, status["ready"])
	assert.Equal(t, false, status["history"])
	assert.NotEmpty(t, status["dependencies"])
}

func TestTranscribe_InputErrors(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.postForm(t, "/api/transcribe", url.Values{"input": {"upload"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please provide audio input first!", decode(t, resp)["error"])

	resp = env.postForm(t, "/api/transcribe", url.Values{"input": {"microphone"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No microphone audio captured yet!", decode(t, resp)["error"])
}

func TestTranscribe_InvalidSelections(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []url.Values{
		{"model": {"huge"}},
		{"language": {"xx"}},
		{"task": {"summarize"}},
	}
	for _, form := range tests {
		resp := env.postForm(t, "/api/transcribe", form)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, form.Encode())
	}
}

func TestUpload_Rejected(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.upload(t, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "wav, mp3, m4a, ogg")

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/audio").StatusCode)
}

func TestUploadTranscribeAndShare(t *testing.T) {
	env := newTestEnv(t, true)
	wav := wavBytes(t, 60)

	resp := env.upload(t, "memo.wav", wav)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	up := decode(t, resp)
	assert.Equal(t, "memo.wav", up["name"])
	assert.InDelta(t, 60.0, up["duration_seconds"], 0.01)

	resp = env.get(t, "/api/audio")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	served, _ := io.ReadAll(resp.Body)
	assert.Equal(t, len(wav), len(served))

	resp = env.postForm(t, "/api/transcribe", url.Values{
		"model":    {"small"},
		"language": {"fr"},
		"task":     {"translate"},
		"input":    {"upload"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode(t, resp)
	assert.Equal(t, "the quick brown fox", result["text"])
	assert.Equal(t, false, result["cached"])
	display := result["display"].(map[string]interface{})
	assert.Equal(t, "1.00 mins", display["duration"])
	assert.Equal(t, "4", display["word_count"])
	assert.Equal(t, "4.0 wpm", display["speaking_rate"])
	assert.Equal(t, stt.Options{Model: "small", Language: "fr", Task: stt.TaskTranslate}, env.tr.last)

	resp = env.get(t, "/api/transcription.txt")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "transcription.txt")
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	text, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "the quick brown fox", string(text))

	resp = env.get(t, "/api/qr.png?download=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "transcription_qr.png")

	resp = env.postForm(t, "/api/clipboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"the quick brown fox"}, env.copied)

	resp = env.get(t, "/api/history?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decode(t, resp)["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "memo.wav", item["file_name"])
	assert.Equal(t, "60.00", item["duration_seconds"])
	assert.Equal(t, "4.0", item["speaking_rate"])

	// Same audio and options come from history.
	resp = env.postForm(t, "/api/transcribe", url.Values{
		"model": {"small"}, "language": {"fr"}, "task": {"translate"}, "input": {"upload"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["cached"])
}

func TestShareWithoutTranscription(t *testing.T) {
	env := newTestEnv(t, false)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/transcription.txt").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/qr.png").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.postForm(t, "/api/clipboard", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/history").StatusCode)
}

func TestClipboardUnsupported(t *testing.T) {
	env := newTestEnv(t, false)
	env.copyErr = share.ErrClipboardUnsupported

	require.Equal(t, http.StatusOK, env.upload(t, "memo.wav", wavBytes(t, 1)).StatusCode)
	require.Equal(t, http.StatusOK, env.postForm(t, "/api/transcribe", url.Values{"input": {"upload"}}).StatusCode)

	resp := env.postForm(t, "/api/clipboard", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHistory_BadLimit(t *testing.T) {
	env := newTestEnv(t, true)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/history?limit=-1").StatusCode)
}

func dialMic(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/mic"
	dialer := websocket.Dialer{Jar: env.jar, HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMic(t *testing.T, conn *websocket.Conn) micMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg micMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestMic_RecordAndTranscribe(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dialMic(t, env)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0}))
	assert.Equal(t, "error", readMic(t, conn).Type, "audio before start is rejected")

	require.NoError(t, conn.WriteJSON(micMessage{Type: "start", SampleRate: 16000, Channels: 1}))
	assert.Equal(t, "started", readMic(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	assert.Equal(t, "error", readMic(t, conn).Type, "odd byte count is rejected")

	second := make([]byte, 32000)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, second))
	msg := readMic(t, conn)
	assert.Equal(t, "buffered", msg.Type)
	assert.Equal(t, 32000, msg.Bytes)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, second))
	assert.Equal(t, 64000, readMic(t, conn).Bytes)

	resp := env.postForm(t, "/api/transcribe", url.Values{"input": {"microphone"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode(t, resp)
	assert.Equal(t, "120.0 wpm", result["display"].(map[string]interface{})["speaking_rate"])
	assert.InDelta(t, 2.0, result["stats"].(map[string]interface{})["duration_seconds"], 0.01)

	// The buffer is consumed by the run.
	resp = env.postForm(t, "/api/transcribe", url.Values{"input": {"microphone"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMic_Clear(t *testing.T) {
	env := newTestEnv(t, false)
	conn := dialMic(t, env)

	require.NoError(t, conn.WriteJSON(micMessage{Type: "start", SampleRate: 16000, Channels: 1}))
	readMic(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 100)))
	readMic(t, conn)

	require.NoError(t, conn.WriteJSON(micMessage{Type: "clear"}))
	assert.Equal(t, 0, readMic(t, conn).Bytes)
}

func TestMic_BufferLimit(t *testing.T) {
	env := newTestEnvWithConfig(t, false, func(cfg *config.Config) { cfg.Upload.MaxMB = 1 })
	conn := dialMic(t, env)

	require.NoError(t, conn.WriteJSON(micMessage{Type: "start", SampleRate: 16000, Channels: 1}))
	readMic(t, conn)

	chunk := make([]byte, 600000)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, chunk))
	assert.Equal(t, len(chunk), readMic(t, conn).Bytes)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, chunk))
	msg := readMic(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "recording limit of 1 MB")
	assert.Equal(t, len(chunk), msg.Bytes, "frames past the limit are dropped")

	require.NoError(t, conn.WriteJSON(micMessage{Type: "clear"}))
	readMic(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, chunk))
	msg = readMic(t, conn)
	assert.Equal(t, "buffered", msg.Type, "clearing frees room for more audio")
	assert.Equal(t, len(chunk), msg.Bytes)
}

func TestMic_RequiresSession(t *testing.T) {
	env := newTestEnv(t, false)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/mic"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.upload(t, "memo.wav", wavBytes(t, 1))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries, err := os.ReadDir(env.server.uploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	env.server.MarkReady()
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + HealthPath)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	entries, err = os.ReadDir(env.server.uploadDir)
	require.NoError(t, err, "a caller-provided upload directory is kept")
	assert.Empty(t, entries, "uploads removed on shutdown")
}

func TestCleanup_RemovesOwnedUploadDir(t *testing.T) {
	env := newTestEnv(t, false)

	server, err := NewServer(env.server.appCtx, Options{})
	require.NoError(t, err)
	require.True(t, server.ownsUploadDir)

	server.cleanup()
	_, err = os.Stat(server.uploadDir)
	assert.True(t, os.IsNotExist(err), "temp upload directory removed")
}
