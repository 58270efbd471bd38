package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultAddr es la dirección del daemon si no se indica otra
const DefaultAddr = "http://127.0.0.1:8087"

// GetDefaultAddr retorna la dirección del daemon desde SMART_STREAM_ADDR
// o DefaultAddr
func GetDefaultAddr() string {
	if addr := os.Getenv("SMART_STREAM_ADDR"); addr != "" {
		return normalizeAddr(addr)
	}
	return DefaultAddr
}

// normalizeAddr acepta ":8087" o "host:port" además de URLs completas
func normalizeAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/")
}

// APIError es una respuesta no exitosa del daemon
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound indica si err es un 404 del daemon
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict indica si err es un 409 del daemon
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Video es un video tal como lo devuelve el daemon
type Video struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	DownloadURL   string  `json:"download_url"`
	VideoFile     *string `json:"video_file"`
	Thumbnail     *string `json:"thumbnail"`
	Status        string  `json:"status"`
	FileSize      int64   `json:"file_size"`
	FileSizeHuman string  `json:"file_size_human"`
	Duration      int     `json:"duration"`
	DurationHuman string  `json:"duration_human"`
	ErrorMessage  string  `json:"error_message"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// Status es la respuesta de /video/{id}/status
type Status struct {
	VideoID        string   `json:"video_id"`
	Title          string   `json:"title"`
	DatabaseStatus string   `json:"database_status"`
	ThreadStatus   string   `json:"thread_status"`
	ThreadAlive    bool     `json:"thread_alive"`
	StartedAt      *string  `json:"started_at"`
	ElapsedSeconds *float64 `json:"elapsed_seconds"`
	FileStatus     string   `json:"file_status"`
	Health         string   `json:"health"`
	DownloadURL    string   `json:"download_url"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	ErrorMessage   string   `json:"error_message"`
}

// Stats son los contadores globales del daemon
type Stats struct {
	Pending       int   `json:"pending"`
	Downloading   int   `json:"downloading"`
	Completed     int   `json:"completed"`
	Error         int   `json:"error"`
	Total         int   `json:"total"`
	TotalSize     int64 `json:"total_size"`
	ActiveWorkers int   `json:"active_workers"`
}

// AddVideoRequest es el payload para registrar un video
type AddVideoRequest struct {
	DownloadURL  string `json:"download_url"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	AutoDownload *bool  `json:"auto_download,omitempty"`
}

// AddVideoResult es la respuesta al registrar un video
type AddVideoResult struct {
	Video           Video `json:"video"`
	DownloadStarted bool  `json:"download_started"`
}

// ListOptions filtra el listado
type ListOptions struct {
	Limit  int
	Status string
}

// Client habla con el daemon por HTTP
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient crea un cliente para addr
func NewClient(addr string) *Client {
	return &Client{
		baseURL: normalizeAddr(addr),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewDefaultClient crea un cliente con la dirección por defecto
func NewDefaultClient() *Client {
	return NewClient(GetDefaultAddr())
}

// BaseURL retorna la URL base del daemon
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StreamURL retorna la URL de streaming de un video
func (c *Client) StreamURL(id string) string {
	return c.baseURL + "/video/" + url.PathEscape(id) + "/stream"
}

// AddVideo registra un video y, salvo que se indique lo contrario, lo descarga
func (c *Client) AddVideo(ctx context.Context, req *AddVideoRequest) (*AddVideoResult, error) {
	var result AddVideoResult
	if err := c.do(ctx, http.MethodPost, "/videos", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get obtiene un video
func (c *Client) Get(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := c.do(ctx, http.MethodGet, videoPath(id, ""), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// List lista videos recientes
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Video, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}

	path := "/videos"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Videos []Video `json:"videos"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Videos, nil
}

// Status obtiene el estado de descarga de un video
func (c *Client) Status(ctx context.Context, id string) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodGet, videoPath(id, "status"), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Download pide la descarga. Retorna false si el daemon no la inició
// (ya completado o en curso).
func (c *Client) Download(ctx context.Context, id string) (bool, error) {
	return c.trigger(ctx, videoPath(id, "download"))
}

// Retry resetea un video en error y lo vuelve a descargar
func (c *Client) Retry(ctx context.Context, id string) (bool, error) {
	return c.trigger(ctx, videoPath(id, "retry"))
}

// Reset devuelve un video a pending
func (c *Client) Reset(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := c.do(ctx, http.MethodPost, videoPath(id, "reset"), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClearFiles borra los archivos de un video. Retorna true si había alguno.
func (c *Client) ClearFiles(ctx context.Context, id string) (bool, error) {
	var result struct {
		Removed bool `json:"removed"`
	}
	if err := c.do(ctx, http.MethodPost, videoPath(id, "clear-files"), nil, &result); err != nil {
		return false, err
	}
	return result.Removed, nil
}

// Delete borra un video y sus archivos
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, videoPath(id, ""), nil, nil)
}

// Stats obtiene estadísticas
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Ping verifica que el daemon responda
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// trigger maneja los endpoints que responden 202/409 {"started": bool}
func (c *Client) trigger(ctx context.Context, path string) (bool, error) {
	var result struct {
		Started bool   `json:"started"`
		Error   string `json:"error"`
	}

	code, body, err := c.send(ctx, http.MethodPost, path, nil)
	if err != nil {
		return false, err
	}

	switch code {
	case http.StatusAccepted, http.StatusConflict:
		if err := json.Unmarshal(body, &result); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		if result.Error != "" {
			return false, &APIError{StatusCode: code, Message: result.Error}
		}
		return result.Started, nil
	default:
		return false, apiError(code, body)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	code, body, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	if code < 200 || code > 299 {
		return apiError(code, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in interface{}) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("connect to daemon: %w (is daemon running?)", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func apiError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &APIError{StatusCode: code, Message: msg}
}

func videoPath(id, action string) string {
	p := "/video/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}
