package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"runtime"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageKind 图片用途，决定压缩目标
type ImageKind string

const (
	ImageCover  ImageKind = "cover"
	ImageInline ImageKind = "inline"
)

// ParseImageKind 只有 "inline" 被识别为正文图，其余一律按封面处理
func ParseImageKind(s string) ImageKind {
	if s == string(ImageInline) {
		return ImageInline
	}
	return ImageCover
}

// ImageBudget 压缩目标（Target）与可接受上限（Max），单位字节
type ImageBudget struct {
	Target int
	Max    int
}

var imageBudgets = map[ImageKind]ImageBudget{
	ImageCover:  {Target: 300 * 1024, Max: 450 * 1024},
	ImageInline: {Target: 250 * 1024, Max: 350 * 1024},
}

// Budget 返回该类型图片的体积预算
func (k ImageKind) Budget() ImageBudget {
	if b, ok := imageBudgets[k]; ok {
		return b
	}
	return imageBudgets[ImageCover]
}

const (
	MaxImageWidth = 1200

	// 解码前按头信息拒绝超大像素数，防止解压炸弹
	maxImagePixels = 40_000_000

	finalPassQuality = 50
)

// 依次尝试的 WebP 质量
var qualityLadder = []int{82, 78, 74, 70, 66, 62, 58, 54, 50}

// ErrDecode 输入不是可解码的位图
var ErrDecode = errors.New("image decode failed")

// EncodeOutcome 标记最终结果与预算的关系
type EncodeOutcome int

const (
	OutcomeWithinTarget EncodeOutcome = iota // 不超过 Target
	OutcomeWithinMax                         // 超过 Target 但不超过 Max
	OutcomeBestEffort                        // 质量阶梯与缩放都用完仍超过 Max
)

func (o EncodeOutcome) String() string {
	switch o {
	case OutcomeWithinTarget:
		return "within_target"
	case OutcomeWithinMax:
		return "within_max"
	default:
		return "best_effort"
	}
}

// ProcessedImage 压缩后的 WebP 数据
type ProcessedImage struct {
	Data      []byte
	Width     int
	Height    int
	SizeBytes int
	Quality   int
	Outcome   EncodeOutcome
}

// ImageProcessor 将任意 JPEG/PNG/WebP 重新编码为体积受控的 WebP。
// 编解码是 CPU 密集操作，用信号量限制同时处理的数量。
type ImageProcessor struct {
	slots chan struct{}
}

// NewImageProcessor concurrency <= 0 时按 CPU 核数
func NewImageProcessor(concurrency int) *ImageProcessor {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &ImageProcessor{slots: make(chan struct{}, concurrency)}
}

// Process 解码、限宽、按质量阶梯压缩，必要时再缩放一次
func (p *ImageProcessor) Process(ctx context.Context, input []byte, kind ImageKind) (*ProcessedImage, error) {
	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	src, err := decodeImage(input)
	if err != nil {
		return nil, err
	}

	budget := kind.Budget()
	width := min(src.Bounds().Dx(), MaxImageWidth)
	scaled := resizeToWidth(src, width)

	var out []byte
	var quality int
	for _, q := range qualityLadder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err = encodeWebP(scaled, q)
		if err != nil {
			return nil, err
		}
		quality = q
		if len(out) <= budget.Target {
			break
		}
	}

	// 最低质量仍超过上限：按面积比例缩小一次，不再循环
	if len(out) > budget.Max {
		scale := math.Sqrt(float64(budget.Max) / float64(len(out)))
		newWidth := max(1, int(math.Floor(float64(width)*scale)))
		scaled = resizeToWidth(src, newWidth)
		out, err = encodeWebP(scaled, finalPassQuality)
		if err != nil {
			return nil, err
		}
		quality = finalPassQuality
	}

	outcome := OutcomeBestEffort
	switch {
	case len(out) <= budget.Target:
		outcome = OutcomeWithinTarget
	case len(out) <= budget.Max:
		outcome = OutcomeWithinMax
	}

	b := scaled.Bounds()
	return &ProcessedImage{
		Data:      out,
		Width:     b.Dx(),
		Height:    b.Dy(),
		SizeBytes: len(out),
		Quality:   quality,
		Outcome:   outcome,
	}, nil
}

// decodeImage 先读取头信息校验尺寸，再完整解码
func decodeImage(input []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrDecode, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// resizeToWidth 等比缩放到指定宽度，不放大
func resizeToWidth(src image.Image, width int) image.Image {
	b := src.Bounds()
	if width >= b.Dx() {
		return src
	}
	height := max(1, int(math.Round(float64(b.Dy())*float64(width)/float64(b.Dx()))))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("WebP 编码失败: %w", err)
	}
	return buf.Bytes(), nil
}
