package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"smartloan/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "audit/desk/1.json", bytes.NewReader([]byte("hello")), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"session": "desk"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "audit/desk/1.json" || info.ContentType != "application/json" || info.Size != 5 {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.URL != "s3://mock-bucket/audit/desk/1.json" {
		t.Fatalf("unexpected url %s", info.URL)
	}
	if info.Metadata["session"] != "desk" {
		t.Fatalf("expected metadata round trip, got %#v", info.Metadata)
	}
	if _, err := store.Put(ctx, "audit/desk/1.json", bytes.NewReader([]byte("ignored")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "audit/desk/1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "audit/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "audit/desk/1.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "audit/desk/1.json"); err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
}

func TestStore_MissingKeysMapToNotFound(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListPaginatesInOrder(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	for _, k := range []string{"k3", "k1", "k5", "k2", "k4", "other"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "k")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var keys []string
	for _, info := range list {
		keys = append(keys, info.Key)
	}
	if strings.Join(keys, ",") != "k1,k2,k3,k4,k5" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if empty, err := store.List(ctx, "no-such-prefix/"); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, empty)
	}
}

func TestStore_PresignURL(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	u, err := store.PresignURL(ctx, "k.json", core.SignedURLOptions{Expiry: 30 * time.Second})
	if err != nil || !strings.Contains(u, "k.json") || !strings.Contains(u, "X-Amz-Expires=30") {
		t.Fatalf("presign custom: %v %s", err, u)
	}
	u, err = store.PresignURL(ctx, "k.json", core.SignedURLOptions{Method: "get"})
	if err != nil || !strings.Contains(u, "X-Amz-Expires=900") {
		t.Fatalf("presign default expiry: %v %s", err, u)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected presign unsupported error, got %v", err)
	}
}

func TestStore_PutRejectsEmptyKey(t *testing.T) {
	if _, err := NewMockForTests().Put(context.Background(), " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{
		Bucket:          "bkt",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 || s.Bucket() != "bkt" {
		t.Fatalf("unexpected store %v %s", s.Driver(), s.Bucket())
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	if _, err := New(context.Background(), Config{Bucket: "bkt", AccessKeyID: "AKIA"}); err == nil {
		t.Fatalf("expected error for half-configured credentials")
	}
}

func TestMockTransportUnsupportedMethod(t *testing.T) {
	rt := &mockTransport{objects: make(map[string]mockObject)}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("plain body must not decode")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc=\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello, got %q %v", b, ok)
	}
}

func TestIsNotFound(t *testing.T) {
	if isNotFound(errors.New("boom")) {
		t.Fatalf("plain errors are not not-found")
	}
}
