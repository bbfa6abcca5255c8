// Package mirror uploads sync targets to an S3-compatible bucket instead of
// the HTTP ingestion endpoint. It satisfies the same Uploader contract, so
// the orchestrator cannot tell the two apart.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/syncagent/internal/agent/upload"
	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
)

type Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type Uploader struct {
	fs     billy.Filesystem
	cfg    Config
	client putObjectAPI
	log    logging.Logger
	now    func() time.Time
}

func New(ctx context.Context, fsys billy.Filesystem, cfg Config, log logging.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &Uploader{fs: fsys, cfg: cfg, client: client, log: log, now: time.Now}, nil
}

// Key lays objects out as <username>/<yyyy>/<mm>/<dd>/<directory>/<filename>.
func Key(username, directory, filename string, t time.Time) string {
	return path.Join(username, t.UTC().Format("2006/01/02"), directory, filename)
}

func (u *Uploader) Upload(ctx context.Context, req upload.UploadRequest) (*upload.Result, error) {
	if req.DirectoryName == "" {
		req.DirectoryName = upload.DirectoryName(req.FilePath)
	}

	f, err := u.fs.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", req.FilePath, err)
	}
	defer f.Close()

	info, err := u.fs.Stat(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", req.FilePath, err)
	}

	head := make([]byte, 3072)
	n, err := f.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %q: %w", req.FilePath, err)
	}
	contentType := mimetype.Detect(head[:n]).String()

	key := Key(req.Username, req.DirectoryName, fsx.Base(req.FilePath), u.now())

	u.log.Info(ctx, "mirroring to s3", "bucket", u.cfg.Bucket, "key", key, "size", info.Size())

	out, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		mapped := mapError(err)
		u.log.Error(ctx, "s3 upload failed", "key", key, "error", mapped)
		return nil, mapped
	}

	body := fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, key)
	if out != nil && out.ETag != nil {
		body += " " + *out.ETag
	}
	return &upload.Result{StatusCode: http.StatusOK, Status: http.StatusText(http.StatusOK), Body: body}, nil
}

type httpStatusError interface {
	HTTPStatusCode() int
}

// mapError turns SDK errors with an HTTP response into *upload.APIError and
// everything else into *upload.NetworkError.
func mapError(err error) error {
	var se httpStatusError
	if !errors.As(err, &se) || se.HTTPStatusCode() == 0 {
		return &upload.NetworkError{Err: err}
	}

	code := se.HTTPStatusCode()
	apiErr := &upload.APIError{StatusCode: code, StatusText: http.StatusText(code), Body: err.Error()}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		apiErr.Body = fmt.Sprintf("%s: %s", ae.ErrorCode(), ae.ErrorMessage())
	}
	return apiErr
}
