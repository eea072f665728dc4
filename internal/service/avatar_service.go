package service

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	// 注册常见图片解码器
	_ "image/gif"
	_ "image/jpeg"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	avatarSize     = 256
	maxAvatarBytes = 5 << 20
)

// AvatarService 将上传的图片缩放为正方形 PNG 头像并写入上传目录
type AvatarService struct {
	users     *UserService
	uploadDir string
	uploadURL string
}

// NewAvatarService 构造 AvatarService
func NewAvatarService(users *UserService, uploadDir, uploadURL string) *AvatarService {
	return &AvatarService{
		users:     users,
		uploadDir: strings.TrimSpace(uploadDir),
		uploadURL: strings.TrimRight(strings.TrimSpace(uploadURL), "/"),
	}
}

// Save 解码 src，居中裁剪缩放后保存，并更新用户头像地址
func (s *AvatarService) Save(uid string, src io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(src, maxAvatarBytes+1))
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > maxAvatarBytes {
		return "", fmt.Errorf("%w: avatar exceeds %d bytes", ErrInvalidInput, maxAvatarBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: unsupported image", ErrInvalidInput)
	}

	dst := ResizeAvatar(img, avatarSize)

	dir := filepath.Join(s.uploadDir, "avatars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create avatar dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.png", time.Now().Format("20060102"), uuid.New().String())
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create avatar file: %w", err)
	}
	if err := png.Encode(f, dst); err != nil {
		f.Close()
		return "", fmt.Errorf("encode avatar: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close avatar file: %w", err)
	}

	url := fmt.Sprintf("%s/avatars/%s", s.uploadURL, name)
	if err := s.users.SetAvatarURL(uid, url); err != nil {
		return "", err
	}
	return url, nil
}

// ResizeAvatar 以中心正方形裁剪 img 并缩放到 size×size
func ResizeAvatar(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Over, nil)
	return dst
}
