package reader

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	// Additional input formats; output is always JPEG, GIF or PNG.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/jonwraymond/pipecache/cachekey"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/pipeline"
	"github.com/jonwraymond/pipecache/source"
)

// ImageConfig configures an ImageReader.
type ImageConfig struct {
	ResourceConfig `yaml:",inline"`

	// Quality is the JPEG encoding quality, 1 to 100.
	// Default: 90
	Quality int `yaml:"quality"`

	// AllowEnlarging permits output larger than the source image.
	// Default: true
	AllowEnlarging *bool `yaml:"allow_enlarging"`
}

// Parameter names understood by ImageReader.Setup, in addition to the
// ResourceReader ones.
const (
	ParamWidth          = "width"
	ParamHeight         = "height"
	ParamQuality        = "quality"
	ParamGrayscale      = "grayscale"
	ParamAllowEnlarging = "allow-enlarging"
)

const defaultQuality = 90

type imageOptions struct {
	width     int
	height    int
	quality   int
	grayscale bool
	enlarge   bool
}

func (o imageOptions) transforms() bool {
	return o.width > 0 || o.height > 0 || o.grayscale
}

// size returns the output size for a w x h source. With one dimension
// requested the other keeps the aspect ratio; with both the image is
// stretched. Without enlarging, a target larger than the source in either
// dimension leaves the size unchanged.
func (o imageOptions) size(w, h int) (int, int) {
	tw, th := o.width, o.height
	switch {
	case tw > 0 && th > 0:
	case tw > 0:
		th = max(1, h*tw/max(w, 1))
	case th > 0:
		tw = max(1, w*th/max(h, 1))
	default:
		return w, h
	}
	if !o.enlarge && (tw > w || th > h) {
		return w, h
	}
	return tw, th
}

// ImageReader serves images, optionally scaled, converted to grayscale or
// re-encoded. Every image parameter is part of the key. Byte ranges are
// only honoured when no transformation applies.
type ImageReader struct {
	cfg      ImageConfig
	resource *ResourceReader
	logger   observe.Logger
}

// NewImageReader creates an image reader.
func NewImageReader(cfg ImageConfig, resolver source.Resolver, logger observe.Logger) *ImageReader {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = defaultQuality
	}
	if cfg.AllowEnlarging == nil {
		enabled := true
		cfg.AllowEnlarging = &enabled
	}
	return &ImageReader{
		cfg:      cfg,
		resource: NewResourceReader(cfg.ResourceConfig, resolver, logger),
		logger:   observe.OrNop(logger),
	}
}

// Name implements pipeline.Component.
func (r *ImageReader) Name() string { return "image" }

func (r *ImageReader) options(params pipeline.Parameters) (imageOptions, error) {
	var o imageOptions
	var err error
	if o.width, err = params.Int(ParamWidth, 0); err != nil {
		return o, err
	}
	if o.height, err = params.Int(ParamHeight, 0); err != nil {
		return o, err
	}
	if o.quality, err = params.Int(ParamQuality, r.cfg.Quality); err != nil {
		return o, err
	}
	if o.grayscale, err = params.Bool(ParamGrayscale, false); err != nil {
		return o, err
	}
	if o.enlarge, err = params.Bool(ParamAllowEnlarging, *r.cfg.AllowEnlarging); err != nil {
		return o, err
	}
	if o.width < 0 || o.height < 0 || o.quality < 1 || o.quality > 100 {
		return o, fmt.Errorf("%w: width=%d height=%d quality=%d",
			pipeline.ErrInvalidParameter, o.width, o.height, o.quality)
	}
	return o, nil
}

// keyFields is every option that changes the rendered image.
func (o imageOptions) keyFields() map[string]any {
	return map[string]any{
		"width":     o.width,
		"height":    o.height,
		"quality":   o.quality,
		"grayscale": o.grayscale,
		"enlarge":   o.enlarge,
	}
}

// Setup implements pipeline.Component.
func (r *ImageReader) Setup(ctx context.Context, env pipeline.Environment, src string, params pipeline.Parameters) (*pipeline.Stage, error) {
	ropts, err := r.resource.options(params)
	if err != nil {
		return nil, err
	}
	iopts, err := r.options(params)
	if err != nil {
		return nil, err
	}

	if !iopts.transforms() {
		st, _, err := r.resource.bind(ctx, env, src, ropts)
		if err != nil {
			return nil, err
		}
		st.Name = r.Name()
		return st, nil
	}

	ropts.byteRanges = false
	st, s, err := r.resource.bind(ctx, env, src, ropts)
	if err != nil {
		return nil, err
	}

	format := outputFormat(s.MimeType())
	key := cachekey.New(r.Name()).
		String("src", s.URI()).
		Params("transform", iopts.keyFields()).
		String("format", format).
		Build()

	st.Name = r.Name()
	st.MimeType = format
	st.Contract = pipeline.Cacheable(key, tokenFor(s.LastModified()))
	st.Run = func(ctx context.Context, _ io.Reader, out io.Writer) error {
		return r.render(ctx, s, out, iopts, format)
	}
	return st, nil
}

func (r *ImageReader) render(ctx context.Context, s source.Source, out io.Writer, o imageOptions, format string) error {
	rc, err := s.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	img, _, err := image.Decode(rc)
	if err != nil {
		return fmt.Errorf("reader: decode %s: %w", s.URI(), err)
	}
	img = transform(img, o)
	r.logger.Debug(ctx, "image transformed", observe.F("source", s.URI()),
		observe.F("width", img.Bounds().Dx()), observe.F("height", img.Bounds().Dy()))

	switch format {
	case "image/jpeg":
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: o.quality})
	case "image/gif":
		err = gif.Encode(out, img, nil)
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("reader: encode %s: %w", s.URI(), err)
	}
	return nil
}

func transform(img image.Image, o imageOptions) image.Image {
	b := img.Bounds()
	if w, h := o.size(b.Dx(), b.Dy()); w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}
	if o.grayscale {
		b = img.Bounds()
		gray := image.NewGray(b)
		draw.Draw(gray, b, img, b.Min, draw.Src)
		img = gray
	}
	return img
}

// outputFormat keeps JPEG and GIF and turns everything else into PNG.
func outputFormat(mime string) string {
	switch mime {
	case "image/jpeg", "image/gif":
		return mime
	default:
		return "image/png"
	}
}
