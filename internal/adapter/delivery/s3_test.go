package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	appconfig "github.com/semmidev/dumpgram/internal/config"
	"github.com/semmidev/dumpgram/internal/domain"
)

type putRequest struct {
	method  string
	path    string
	caption string
}

// fakeS3 accepts single-part PutObject calls on a path-style endpoint.
type fakeS3 struct {
	mu   sync.Mutex
	deny bool
	puts []putRequest
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	f.puts = append(f.puts, putRequest{
		method:  r.Method,
		path:    r.URL.Path,
		caption: r.Header.Get("X-Amz-Meta-Caption"),
	})
	f.mu.Unlock()

	if f.deny {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		return
	}

	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func TestS3Deliverer(t *testing.T) {
	Convey("Given an S3Deliverer pointed at a fake S3 endpoint", t, func() {
		api := &fakeS3{}
		server := httptest.NewServer(api)
		defer server.Close()

		tempDir, err := os.MkdirTemp("", "s3_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		archive := filepath.Join(tempDir, "backup.zip")
		So(os.WriteFile(archive, []byte("zip bytes"), 0644), ShouldBeNil)

		ctx := context.Background()
		deliverer, err := NewS3(ctx, appconfig.S3Config{
			Region:    "us-east-1",
			Bucket:    "dumps",
			AccessKey: "AKIATEST",
			SecretKey: "secret",
			Prefix:    "nightly",
			Endpoint:  server.URL,
		}, 10*time.Second)
		So(err, ShouldBeNil)
		So(deliverer.Name(), ShouldEqual, "s3")

		Convey("Key joins the prefix and the archive base name", func() {
			So(deliverer.Key(archive), ShouldEqual, "nightly/backup.zip")
		})

		Convey("When delivering an archive", func() {
			err := deliverer.Deliver(ctx, archive, "2026-01-02 03:04:05")

			Convey("It should put the object under bucket and prefix with the caption", func() {
				So(err, ShouldBeNil)
				So(len(api.puts), ShouldEqual, 1)
				So(api.puts[0].method, ShouldEqual, http.MethodPut)
				So(api.puts[0].path, ShouldEqual, "/dumps/nightly/backup.zip")
				So(api.puts[0].caption, ShouldEqual, "2026-01-02 03:04:05")
			})
		})

		Convey("When the bucket denies access", func() {
			api.deny = true
			err := deliverer.Deliver(ctx, archive, "caption")

			Convey("It should return a delivery error", func() {
				So(errors.Is(err, domain.ErrDelivery), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "AccessDenied")
			})
		})

		Convey("When the archive does not exist", func() {
			err := deliverer.Deliver(ctx, filepath.Join(tempDir, "missing.zip"), "caption")

			So(errors.Is(err, domain.ErrDelivery), ShouldBeTrue)
			So(api.puts, ShouldBeEmpty)
		})
	})
}
