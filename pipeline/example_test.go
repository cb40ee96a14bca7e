package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/jonwraymond/pipecache/cachekey"
	"github.com/jonwraymond/pipecache/pipeline"
	"github.com/jonwraymond/pipecache/store"
	"github.com/jonwraymond/pipecache/validity"
)

func ExampleEvaluator() {
	dir, err := os.MkdirTemp("", "pipecache-example")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer os.RemoveAll(dir)

	st, err := store.New(store.Config{Directory: dir})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer st.Close()

	ev := pipeline.NewEvaluator(st)
	modified := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	greeting := func() *pipeline.Stage {
		return &pipeline.Stage{
			Name:         "greeting",
			Contract:     pipeline.Cacheable(cachekey.New("greeting").Build(), validity.FromTime(modified)),
			LastModified: modified,
			MimeType:     "text/plain",
			Run: func(_ context.Context, _ io.Reader, out io.Writer) error {
				_, err := io.WriteString(out, "hello")
				return err
			},
		}
	}

	// The first request regenerates and stores, the second replays
	for range 2 {
		rec := httptest.NewRecorder()
		env := pipeline.NewHTTPEnvironment(rec, httptest.NewRequest(http.MethodGet, "/hello", nil))
		out, err := ev.Process(context.Background(), env, "hello", []*pipeline.Stage{greeting()})
		env.Commit()
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		fmt.Println(rec.Body.String(), out.PathString())
	}
	// Output:
	// hello init>key-computed>miss>regenerating>served>stored
	// hello init>key-computed>full-hit>served
}
