// Package upload sends a single file to the Dentread ingestion endpoint.
//
// The request is a multipart form POST with three parts, in order:
// directory_path (text), username (text) and files (the file stream under its
// own base name). The body is streamed, never held in memory whole.
package upload

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/syncagent/internal/agent/auth"
	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
)

const (
	FieldDirectoryPath = "directory_path"
	FieldUsername      = "username"
	FieldFiles         = "files"

	DefaultTimeout = 10 * time.Minute

	sniffLen = 3072
)

type UploadRequest struct {
	FilePath      string
	EndpointURL   string
	BearerToken   string
	Username      string
	DirectoryName string
}

// Result is a 2xx response.
type Result struct {
	StatusCode int
	Status     string
	Body       string
}

type Client struct {
	fs   billy.Filesystem
	http *http.Client
	log  logging.Logger
	now  func() time.Time
}

// NewClient builds a client reading files from fsys. A zero timeout means
// DefaultTimeout.
func NewClient(fsys billy.Filesystem, log logging.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		fs:   fsys,
		http: &http.Client{Timeout: timeout},
		log:  log,
		now:  time.Now,
	}
}

// DirectoryName is the base name of p without its final extension.
func DirectoryName(p string) string {
	base := fsx.Base(p)
	ext := path.Ext(base)
	if ext == base {
		return base
	}
	return strings.TrimSuffix(base, ext)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload posts req.FilePath to req.EndpointURL. It never removes the file.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*Result, error) {
	if req.DirectoryName == "" {
		req.DirectoryName = DirectoryName(req.FilePath)
	}

	f, err := c.fs.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", req.FilePath, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("read %q: %w", req.FilePath, err)
	}
	contentType := mimetype.Detect(head).String()

	c.checkToken(ctx, req.BearerToken)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeBody(mw, req, fsx.Base(req.FilePath), contentType, br))
	}()
	defer func() {
		_ = pr.Close()
		<-done
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.EndpointURL, pr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Info(ctx, "uploading", "file", req.FilePath, "directory_path", req.DirectoryName,
		"content_type", contentType, "endpoint", req.EndpointURL)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(body),
		}
		c.log.Error(ctx, "upload rejected", "status", resp.StatusCode, "body", apiErr.Body)
		return nil, apiErr
	}

	c.log.Info(ctx, "upload accepted", "file", req.FilePath, "status", resp.StatusCode)
	return &Result{StatusCode: resp.StatusCode, Status: statusText(resp), Body: string(body)}, nil
}

func writeBody(mw *multipart.Writer, req UploadRequest, filename, contentType string, r io.Reader) error {
	if err := mw.WriteField(FieldDirectoryPath, req.DirectoryName); err != nil {
		return err
	}
	if err := mw.WriteField(FieldUsername, req.Username); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldFiles, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) checkToken(ctx context.Context, token string) {
	switch err := auth.CheckExpiry(token, c.now()); err {
	case nil, auth.ErrNoExpiry:
	case auth.ErrTokenExpired:
		c.log.Warn(ctx, "access token has expired, the server will likely reject the upload")
	default:
		c.log.Warn(ctx, "access token could not be inspected", "error", err)
	}
}

// statusText drops the numeric prefix from resp.Status ("404 Not Found").
func statusText(resp *http.Response) string {
	if s := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); s != "" && s != resp.Status {
		return s
	}
	if s := http.StatusText(resp.StatusCode); s != "" {
		return s
	}
	return resp.Status
}
