package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"safekeep/internal/sk"
)

// fakeS3 is an in-memory s3Client. Multipart calls fail, which is fine for
// artifacts smaller than the upload manager's part size.
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	headErr   error
	lastInput *s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.lastInput = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Vault(t *testing.T) {
	t.Run("round trip under prefix", func(t *testing.T) {
		t.Parallel()
		client := newFakeS3()
		v := newS3VaultWithClient("offsite", S3Options{Bucket: "backups", Prefix: "clinic-a"}, client)

		if err := v.Put("db.sql.gz.enc", strings.NewReader("cipher"), 6); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, ok := client.objects["backups/clinic-a/db.sql.gz.enc"]; !ok {
			t.Fatalf("object not stored under prefix, have %v", client.objects)
		}

		var buf bytes.Buffer
		if err := v.Get("db.sql.gz.enc", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "cipher" {
			t.Errorf("Get() = %q, want cipher", buf.String())
		}

		if err := v.Delete("db.sql.gz.enc"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := v.Get("db.sql.gz.enc", &buf); !errors.Is(err, sk.ErrNotFound) {
			t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("size mismatch is reported", func(t *testing.T) {
		t.Parallel()
		v := newS3VaultWithClient("offsite", S3Options{Bucket: "backups"}, newFakeS3())
		if err := v.Put("x.enc", strings.NewReader("abc"), 10); err == nil {
			t.Error("Put() with wrong size succeeded")
		}
	})

	t.Run("validate reports unreachable bucket", func(t *testing.T) {
		t.Parallel()
		client := newFakeS3()
		client.headErr = errors.New("forbidden")
		v := newS3VaultWithClient("offsite", S3Options{Bucket: "backups"}, client)
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() succeeded with failing HeadBucket")
		}
	})
}

func TestNewS3Vault_RequiresBucket(t *testing.T) {
	t.Parallel()
	if _, err := NewS3Vault(context.Background(), "offsite", S3Options{}); err == nil {
		t.Error("NewS3Vault() succeeded without bucket")
	}
}
