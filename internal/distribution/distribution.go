package distribution

import (
	"context"
	"fmt"
)

type Platform string

const (
	Instagram Platform = "instagram"
	YouTube   Platform = "youtube"
)

func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case Instagram, YouTube:
		return Platform(s), nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) Title() string {
	switch p {
	case Instagram:
		return "Instagram"
	case YouTube:
		return "YouTube"
	}
	return string(p)
}

type UploadRequest struct {
	FilePath string
	Caption  string
}

type UploadResponse struct {
	ID       string
	URL      string
	Platform Platform
}

type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)
	Platform() Platform
}
