package cachekey_test

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/pipecache/cachekey"
)

func ExampleNew() {
	key := cachekey.New("resource").
		String("src", "file:a.css").
		Bool("ranges", true).
		Build()
	fmt.Println(key)
	// Output:
	// resource{src=10:file:a.css;ranges=4:true}
}

func ExampleCompose() {
	doc := cachekey.New("doc").String("src", "doc.txt").Build()
	upper := cachekey.New("upper").Build()

	fmt.Println(cachekey.Compose(doc, upper))

	// One uncacheable stage makes the whole pipeline uncacheable
	fmt.Println(cachekey.Compose(doc, cachekey.NotCacheable).Cacheable())
	// Output:
	// 18:doc{src=7:doc.txt}7:upper{}
	// false
}

func ExampleDigest() {
	a, _ := cachekey.Digest(map[string]string{"width": "16", "height": "8"})
	b, _ := cachekey.Digest(map[string]any{"height": "8", "width": "16"})
	fmt.Println("Same digest:", a == b)
	fmt.Println("Length:", len(a))
	// Output:
	// Same digest: true
	// Length: 64
}

func ExampleValidate() {
	fmt.Println(cachekey.Validate("pipeline/docs/3f2a"))
	fmt.Println(errors.Is(cachekey.Validate(""), cachekey.ErrEmptyKey))
	// Output:
	// <nil>
	// true
}
