package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestNewLocalBackendCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "uploads")
	if _, err := NewLocalBackend(root); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := NewLocalBackend(root); err != nil {
		t.Fatalf("second init should be idempotent: %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s: %v", root, err)
	}
	if _, err := NewLocalBackend("  "); err == nil {
		t.Fatal("expected empty root to be rejected")
	}
}

func TestLocalBackendLifecycle(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	n, err := b.Create(ctx, "a.txt", strings.NewReader("hello"))
	if err != nil || n != 5 {
		t.Fatalf("create: n=%d err=%v", n, err)
	}
	if _, err := b.Create(ctx, "a.txt", strings.NewReader("other")); !errors.Is(err, ErrExist) {
		t.Fatalf("expected ErrExist on overwrite, got %v", err)
	}

	obj, err := b.Open(ctx, "a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(obj.Body)
	_ = obj.Body.Close()
	if string(body) != "hello" || obj.Size != 5 {
		t.Fatalf("unexpected content %q size %d", body, obj.Size)
	}

	list, err := b.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "a.txt" {
		t.Fatalf("expected only a.txt listed (temp dir hidden), got %+v", list)
	}

	if err := b.Delete(ctx, "a.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Delete(ctx, "a.txt"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := b.Open(ctx, "a.txt"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLocalBackendRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, name := range []string{"", "..", "../x", "a/b", `a\b`, ".tmp", ".hidden"} {
		if _, err := b.Open(ctx, name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: expected ErrInvalidName, got %v", name, err)
		}
		if _, err := b.Create(ctx, name, strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: expected ErrInvalidName on create, got %v", name, err)
		}
	}
}

var namePattern = regexp.MustCompile(`^\d{13}-\d{9}(\.[^./\\]*)?$`)

func TestStoreSaveNamesAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	s := NewStore(b, 1<<20)

	payload := []byte{0x00, 0x01, 0xfe, 0xff, 'p', 'n', 'g'}
	first, err := s.Save(ctx, bytes.NewReader(payload), "Photo.PNG")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !namePattern.MatchString(first.Name) || !strings.HasSuffix(first.Name, ".PNG") {
		t.Fatalf("unexpected stored name %q", first.Name)
	}
	if first.Size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), first.Size)
	}

	second, err := s.Save(ctx, bytes.NewReader(payload), "Photo.PNG")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.Name == first.Name {
		t.Fatalf("expected distinct names, both %q", first.Name)
	}

	obj, err := s.Open(ctx, first.Name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer obj.Body.Close()
	got, _ := io.ReadAll(obj.Body)
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: %v vs %v", got, payload)
	}

	if URL(first.Name) != "/uploads/"+first.Name {
		t.Fatalf("unexpected url %q", URL(first.Name))
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"report.pdf":         ".pdf",
		"Photo.JPG":          ".JPG",
		"archive.tar.GZ":     ".GZ",
		"notes.ta-r":         ".ta-r",
		"noext":              "",
		"trailing.":          ".",
		"weird.<script>":     ".<script>",
		"../../etc/passwd":   "",
		"dir/inner/file.txt": ".txt",
		`odd.a\b`:            "",
		"nul.a\x00b":         "",
	}
	for in, want := range cases {
		if got := extension(in); got != want {
			t.Fatalf("extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStoreRejectsOversizedContent(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	s := NewStore(b, 4)

	if _, err := s.Save(ctx, strings.NewReader("12345"), "big.bin"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	list, _ := b.List(ctx)
	if len(list) != 0 {
		t.Fatalf("oversized file should be removed, found %+v", list)
	}
	if _, err := s.Save(ctx, strings.NewReader("1234"), "ok.bin"); err != nil {
		t.Fatalf("file at the limit should be accepted: %v", err)
	}
}

// memBackend is an in-memory Backend used to force name collisions.
type memBackend struct {
	mu    sync.Mutex
	files map[string][]byte
	taken func(name string) bool
}

func newMemBackend() *memBackend {
	return &memBackend{files: map[string][]byte{}}
}

func (m *memBackend) Create(_ context.Context, name string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok {
		return 0, ErrExist
	}
	m.files[name] = data
	return int64(len(data)), nil
}

func (m *memBackend) Open(_ context.Context, name string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken != nil && m.taken(name) {
		return &Object{Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	data, ok := m.files[name]
	if !ok {
		return nil, ErrNotExist
	}
	return &Object{Body: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data))}, nil
}

func (m *memBackend) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func (m *memBackend) List(context.Context) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for n, d := range m.files {
		out = append(out, ObjectInfo{Name: n, Size: int64(len(d))})
	}
	return out, nil
}

func TestStoreRetriesTakenNames(t *testing.T) {
	mem := newMemBackend()
	probes := 0
	mem.taken = func(string) bool {
		probes++
		return probes == 1
	}
	s := NewStore(mem, 0)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	stored, err := s.Save(context.Background(), strings.NewReader("data"), "a.txt")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if probes != 2 {
		t.Fatalf("expected a retry after the first name was taken, probes=%d", probes)
	}
	if !strings.HasPrefix(stored.Name, "1700000000000-") {
		t.Fatalf("unexpected name %q", stored.Name)
	}

	mem.taken = func(string) bool { return true }
	if _, err := s.Save(context.Background(), strings.NewReader("data"), "a.txt"); !errors.Is(err, ErrExist) {
		t.Fatalf("expected ErrExist when every name is taken, got %v", err)
	}
}

// fakeS3 keeps objects in memory and honours If-None-Match.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type fakeAPIError struct{ code string }

func (e fakeAPIError) Error() string                 { return e.code }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, fakeAPIError{code: "PreconditionFailed"}
	}
	f.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k, v := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(v)))})
		}
	}
	return out, nil
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{"other/skip.txt": []byte("x")}}
	b := NewS3BackendWithClient(fake, "bucket", "uploads")

	if n, err := b.Create(ctx, "a.txt", strings.NewReader("hello")); err != nil || n != 5 {
		t.Fatalf("create: n=%d err=%v", n, err)
	}
	if _, ok := fake.objects["uploads/a.txt"]; !ok {
		t.Fatalf("expected prefixed key, got %v", fake.objects)
	}
	if _, err := b.Create(ctx, "a.txt", strings.NewReader("again")); !errors.Is(err, ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}

	obj, err := b.Open(ctx, "a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(obj.Body)
	_ = obj.Body.Close()
	if string(data) != "hello" || obj.Size != 5 {
		t.Fatalf("unexpected object %q size %d", data, obj.Size)
	}

	list, err := b.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "a.txt" {
		t.Fatalf("expected only a.txt, got %+v", list)
	}

	if err := b.Delete(ctx, "a.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := b.Open(ctx, "a.txt"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, err := b.Open(ctx, "../a.txt"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}
