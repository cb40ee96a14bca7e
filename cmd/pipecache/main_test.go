package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/pipecache/admin"
	"github.com/jonwraymond/pipecache/pipeline"
	"github.com/jonwraymond/pipecache/store"
	"github.com/jonwraymond/pipecache/validity"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(store.Config{Directory: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	e, err := pipeline.NewEntry("resource(src=file:///a.txt)", validity.FromTime(time.Unix(100, 0)), []byte("hello"), time.Unix(200, 0))
	if err != nil {
		t.Fatal(err)
	}
	data, err := pipeline.MarshalEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	for key, v := range map[string][]byte{
		"pipeline/static/aaa": data,
		"pipeline/static/bbb": []byte("raw"),
		"other/ccc":           []byte("raw"),
	} {
		if err := s.Store(ctx, key, v); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestStoreKeys(t *testing.T) {
	dir := seedStore(t)

	out, err := run(t, "store", "keys", "--dir", dir, "--prefix", "pipeline/")
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Fields(out)
	if len(got) != 2 || !strings.HasPrefix(got[0], "pipeline/") || !strings.HasPrefix(got[1], "pipeline/") {
		t.Fatalf("keys = %q", got)
	}

	out, err = run(t, "store", "size", "-d", dir)
	if err != nil || strings.TrimSpace(out) != "3" {
		t.Fatalf("size = %q, %v", out, err)
	}
}

func TestStoreShow(t *testing.T) {
	dir := seedStore(t)

	out, err := run(t, "store", "show", "--dir", dir, "pipeline/static/aaa")
	if err != nil {
		t.Fatal(err)
	}
	var info admin.EntryInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("%v: %s", err, out)
	}
	if info.CacheKey != "resource(src=file:///a.txt)" || info.Bytes != 5 {
		t.Errorf("info = %+v", info)
	}

	if _, err := run(t, "store", "show", "--dir", dir, "pipeline/static/bbb"); err == nil {
		t.Error("raw value described as an entry")
	}
}

func TestStoreRemove(t *testing.T) {
	dir := seedStore(t)

	out, err := run(t, "store", "rm", "--dir", dir, "other/ccc", "missing/key")
	if err == nil || !strings.Contains(err.Error(), "missing/key") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "removed other/ccc") {
		t.Errorf("out = %q", out)
	}

	out, _ = run(t, "store", "size", "--dir", dir)
	if strings.TrimSpace(out) != "2" {
		t.Fatalf("size after rm = %q", out)
	}
}

func TestStoreRequiresDir(t *testing.T) {
	if _, err := run(t, "store", "keys"); err == nil {
		t.Fatal("missing --dir accepted")
	}
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipecache.yaml")
	body := `
sources:
  root: ` + dir + `
stores:
  main:
    directory: ` + filepath.Join(dir, "store") + `
components:
  files:
    type: resource
mounts:
  - name: static
    path: /static/
    store: main
    steps:
      - component: files
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "config", "check", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "mount static") || !strings.Contains(out, "store main") {
		t.Errorf("out = %q", out)
	}

	if err := os.WriteFile(path, []byte("mounts: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "config", "check", "-c", path); err == nil {
		t.Error("config without mounts accepted")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "pipecache version: dev") || !strings.Contains(out, "go version:") {
		t.Errorf("out = %q", out)
	}
}
