package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"emperror.dev/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/op/go-logging"
)

// S3Fs keeps the vault below prefix inside one bucket. Folders are key
// prefixes and need no creation.
type S3Fs struct {
	s3       *minio.Client
	endpoint string
	bucket   string
	prefix   string
	logger   *logging.Logger
}

func NewS3Fs(endpoint, accessKeyId, secretAccessKey string, useSSL bool, bucket, prefix string, logger *logging.Logger) (*S3Fs, error) {
	s3, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyId, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to s3 instance")
	}
	return &S3Fs{s3: s3, endpoint: endpoint, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// EnsureBucket creates the vault bucket if it is missing.
func (fs *S3Fs) EnsureBucket(ctx context.Context) error {
	found, err := fs.s3.BucketExists(ctx, fs.bucket)
	if err != nil {
		return errors.Wrapf(err, "cannot check for bucket %v", fs.bucket)
	}
	if found {
		return nil
	}
	fs.logger.Infof("creating bucket %v", fs.bucket)
	if err := fs.s3.MakeBucket(ctx, fs.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrapf(err, "cannot create bucket %s", fs.bucket)
	}
	return nil
}

func (fs *S3Fs) Protocol() string {
	return fmt.Sprintf("s3://%s", fs.endpoint)
}

func (fs *S3Fs) String() string {
	return fmt.Sprintf("%s/%s/%s", fs.s3.EndpointURL().String(), fs.bucket, fs.prefix)
}

func (fs *S3Fs) key(folder, name string) string {
	return path.Join(fs.prefix, folder, name)
}

func isS3NotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

func (fs *S3Fs) FileStat(folder, name string, opts FileStatOptions) (os.FileInfo, error) {
	key := fs.key(folder, name)
	sinfo, err := fs.s3.StatObject(context.Background(), fs.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "%v/%v", fs.bucket, key)
		}
		return nil, errors.Wrapf(err, "cannot get file info for %v/%v", fs.bucket, key)
	}
	return &S3FileInfo{name: name, info: sinfo}, nil
}

func (fs *S3Fs) FileExists(folder, name string) (bool, error) {
	_, err := fs.FileStat(folder, name, FileStatOptions{})
	if err != nil {
		// no file no error
		if IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FolderExists reports whether any object lives below folder.
func (fs *S3Fs) FolderExists(folder string) (bool, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prefix := fs.key(folder, "")
	if prefix != "" {
		prefix += "/"
	}
	for obj := range fs.s3.ListObjects(ctx, fs.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if obj.Err != nil {
			return false, errors.Wrapf(obj.Err, "cannot list %v/%v", fs.bucket, prefix)
		}
		return true, nil
	}
	return false, nil
}

func (fs *S3Fs) FolderCreate(folder string, opts FolderCreateOptions) error {
	return nil
}

func (fs *S3Fs) FileGet(folder, name string, opts FileGetOptions) ([]byte, error) {
	key := fs.key(folder, name)
	object, err := fs.s3.GetObject(context.Background(), fs.bucket, key, minio.GetObjectOptions{VersionID: opts.VersionID})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot get object %v/%v", fs.bucket, key)
	}
	defer object.Close()
	var b = &bytes.Buffer{}
	if _, err := io.Copy(b, object); err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "%v/%v", fs.bucket, key)
		}
		return nil, errors.Wrapf(err, "cannot copy data from %v/%v", fs.bucket, key)
	}
	return b.Bytes(), nil
}

// FilePut with Exclusive checks for the object first. S3 has no atomic
// create-if-absent, a concurrent writer may still win.
func (fs *S3Fs) FilePut(folder, name string, data []byte, opts FilePutOptions) error {
	key := fs.key(folder, name)
	if opts.Exclusive {
		found, err := fs.FileExists(folder, name)
		if err != nil {
			return err
		}
		if found {
			return errors.Wrapf(ErrExists, "%v/%v", fs.bucket, key)
		}
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "text/markdown; charset=utf-8"
	}
	fs.logger.Debugf("writing data to: %v/%v", fs.bucket, key)
	if _, err := fs.s3.PutObject(
		context.Background(),
		fs.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	); err != nil {
		return errors.Wrapf(err, "cannot put %v/%v", fs.bucket, key)
	}
	return nil
}

type S3FileInfo struct {
	name string
	info minio.ObjectInfo
}

func (sfi *S3FileInfo) Name() string       { return sfi.name }
func (sfi *S3FileInfo) Size() int64        { return sfi.info.Size }
func (sfi *S3FileInfo) Mode() os.FileMode  { return 0644 }
func (sfi *S3FileInfo) ModTime() time.Time { return sfi.info.LastModified }
func (sfi *S3FileInfo) IsDir() bool        { return false }
func (sfi *S3FileInfo) Sys() interface{}   { return sfi.info }
