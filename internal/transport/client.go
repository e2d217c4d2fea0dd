package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gammanik/resumable-upload/internal/utils"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// ChunkRequest один чанк для отправки на сервер
type ChunkRequest struct {
	UploadID    string
	Index       int
	TotalChunks int
	FileName    string
	Data        []byte
}

// ChunkAck подтверждение сервера о приеме чанка
type ChunkAck struct {
	Message        string `json:"message"`
	UploadedChunks int    `json:"uploadedChunks"`
	TotalChunks    int    `json:"totalChunks"`
}

// Metadata состояние загрузки на сервере
type Metadata struct {
	UploadID       string `json:"fileId"`
	UploadedChunks []int  `json:"uploadedChunks"`
	TotalChunks    int    `json:"totalChunks"`
	Complete       bool   `json:"complete"`
}

// Client интерфейс для взаимодействия с сервером загрузок
type Client interface {
	// UploadChunk отправляет один чанк, без повторов
	UploadChunk(ctx context.Context, chunk ChunkRequest) (*ChunkAck, error)

	// Metadata возвращает прогресс загрузки
	Metadata(ctx context.Context, uploadID string) (*Metadata, error)

	// Checksum возвращает контентный адрес завершенной загрузки
	Checksum(ctx context.Context, uploadID string) (string, error)

	// Delete удаляет загрузку на сервере
	Delete(ctx context.Context, uploadID string) error
}

// HTTPClient реализация Client поверх HTTP API сервера
type HTTPClient struct {
	chunks  *retryablehttp.Client
	queries *retryablehttp.Client
	baseURL string
	token   string
	logger  log.Logger
}

// New создает клиента. Повторы отправки чанков выполняет вызывающий код,
// запросы состояния повторяются самим клиентом.
func New(baseURL, token string, timeout time.Duration, logger log.Logger) *HTTPClient {
	chunks := retryhttp.NewClient(logger)
	chunks.RetryMax = 0
	chunks.ErrorHandler = retryablehttp.PassthroughErrorHandler
	chunks.HTTPClient.Timeout = timeout

	queries := retryhttp.NewClient(logger)
	queries.ErrorHandler = retryablehttp.PassthroughErrorHandler
	queries.HTTPClient.Timeout = timeout

	return &HTTPClient{
		chunks:  chunks,
		queries: queries,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
	}
}

// UploadChunk загружает чанк multipart формой
func (c *HTTPClient) UploadChunk(ctx context.Context, chunk ChunkRequest) (*ChunkAck, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := []struct{ name, value string }{
		{"fileId", chunk.UploadID},
		{"chunkIndex", strconv.Itoa(chunk.Index)},
		{"totalChunks", strconv.Itoa(chunk.TotalChunks)},
		{"chunkHash", utils.ChunkSHA256(chunk.Data)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	fileName := chunk.FileName
	if fileName == "" {
		fileName = "chunk"
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(chunk.Data); err != nil {
		return nil, fmt.Errorf("write chunk data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-chunk", body.Bytes())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	var ack ChunkAck
	if err := c.do(c.chunks, req, &ack); err != nil {
		return nil, fmt.Errorf("upload chunk %d: %w", chunk.Index, err)
	}
	return &ack, nil
}

// Metadata запрашивает прогресс загрузки
func (c *HTTPClient) Metadata(ctx context.Context, uploadID string) (*Metadata, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(uploadID, "metadata"), nil)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := c.do(c.queries, req, &meta); err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return &meta, nil
}

// Checksum запрашивает контентный адрес загрузки
func (c *HTTPClient) Checksum(ctx context.Context, uploadID string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(uploadID, "checksum"), nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Checksum string `json:"checksum"`
	}
	if err := c.do(c.queries, req, &resp); err != nil {
		return "", fmt.Errorf("get checksum: %w", err)
	}
	return resp.Checksum, nil
}

// Delete удаляет загрузку
func (c *HTTPClient) Delete(ctx context.Context, uploadID string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, c.fileURL(uploadID, ""), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	if err := c.do(c.queries, req, nil); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

func (c *HTTPClient) fileURL(uploadID, action string) string {
	u := c.baseURL + "/file/" + url.PathEscape(uploadID)
	if action != "" {
		u += "/" + action
	}
	return u
}

func (c *HTTPClient) authorize(req *retryablehttp.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
}

func (c *HTTPClient) do(client *retryablehttp.Client, req *retryablehttp.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf("close response body: %s", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return unwrapError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func unwrapError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode, Kind: kindOf(resp.StatusCode)}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		if json.Unmarshal(data, &body) == nil {
			statusErr.Code = body.Error
			statusErr.Message = body.Message
		} else {
			statusErr.Message = strings.TrimSpace(string(data))
		}
	}
	return statusErr
}
