package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey", msg: "no such key"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound", msg: "not found"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3RoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockS3()
	s := NewS3(mock, "voices", "/prompts/")

	if err := WriteFile(ctx, s, "u1/v1.wav", []byte("wav")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, ok := mock.objects["prompts/u1/v1.wav"]; !ok {
		t.Fatalf("objects = %v, want prefixed key", mock.objects)
	}
	if got := s.Locate("u1/v1.wav"); got != "s3://voices/prompts/u1/v1.wav" {
		t.Fatalf("Locate() = %q", got)
	}
	got, err := ReadFile(ctx, s, "u1/v1.wav")
	if err != nil || string(got) != "wav" {
		t.Fatalf("ReadFile() = %q, %v", got, err)
	}
	if ok, err := s.Exists(ctx, "u1/v1.wav"); err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "u1/v1.wav"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, err := s.Exists(ctx, "u1/v1.wav"); err != nil || ok {
		t.Fatalf("Exists() after delete = %v, %v", ok, err)
	}
	if _, err := s.Read(ctx, "u1/v1.wav"); !IsNotExist(err) {
		t.Fatalf("Read() missing error = %v, want not exist", err)
	}
}

func TestS3UploadErrorSurfacesOnClose(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	s := NewS3(mock, "voices", "")
	if err := WriteFile(context.Background(), s, "x.wav", []byte("x")); err == nil {
		t.Fatalf("WriteFile() error = nil, want upload error")
	}
}
