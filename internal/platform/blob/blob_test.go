package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestLocalRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	ctx := context.Background()
	if err := store.Put(ctx, "forms/contact/sub_1.json", []byte(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "forms/contact/sub_1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("get = %q", got)
	}
	if err := store.Delete(ctx, "forms/contact/sub_1.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "forms/contact/sub_1.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "forms/contact/sub_1.json"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	for _, key := range []string{"", "../secret", "a/../../b", "a//b"} {
		if err := store.Put(context.Background(), key, nil, ""); err == nil {
			t.Errorf("Put(%q) expected error", key)
		}
	}
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3UsesPrefixAndMapsMissing(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	store := newS3WithClient(fake, "bucket", "/drainwiz/")
	ctx := context.Background()

	if err := store.Put(ctx, "forms/sub_1.json", []byte("x"), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := fake.objects["bucket/drainwiz/forms/sub_1.json"]; !ok {
		t.Fatalf("objects = %v, want prefixed key", fake.objects)
	}
	if got := fake.types["drainwiz/forms/sub_1.json"]; got != "application/json" {
		t.Fatalf("content type = %q", got)
	}
	data, err := store.Get(ctx, "forms/sub_1.json")
	if err != nil || string(data) != "x" {
		t.Fatalf("get = %q, %v", data, err)
	}
	if err := store.Delete(ctx, "forms/sub_1.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "forms/sub_1.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Config{Driver: "local", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	if _, ok := store.(*Local); !ok {
		t.Fatalf("store = %T, want *Local", store)
	}
	if _, err := Open(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(context.Background(), Config{Driver: "s3"}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}
