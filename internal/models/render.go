package models

import (
	"net/url"
	"strings"

	"clipforge/internal/pkg/errors"
)

// Messages returned to HTTP callers for rejected render requests.
const (
	MsgMissingVideoURL = "Missing videoUrl parameter"
	MsgMissingCaption  = "Missing caption parameter"
	MsgInvalidVideoURL = "Invalid videoUrl parameter"
)

// RenderRequest describes one short vertical video to produce.
type RenderRequest struct {
	VideoURL   string `json:"videoUrl" mapstructure:"videoUrl"`
	Caption    string `json:"caption" mapstructure:"caption"`
	ScriptText string `json:"scriptText,omitempty" mapstructure:"scriptText"`
}

// Validate checks the request before any pipeline work starts.
// videoUrl is checked before caption.
func (r RenderRequest) Validate() error {
	if strings.TrimSpace(r.VideoURL) == "" {
		return errors.ValidationField("videoUrl", MsgMissingVideoURL)
	}
	if strings.TrimSpace(r.Caption) == "" {
		return errors.ValidationField("caption", MsgMissingCaption)
	}
	if !IsMediaURL(r.VideoURL) {
		return errors.ValidationField("videoUrl", MsgInvalidVideoURL)
	}
	return nil
}

// Normalize trims the URL and fills ScriptText from Caption when absent.
func (r RenderRequest) Normalize() RenderRequest {
	r.VideoURL = strings.TrimSpace(r.VideoURL)
	if strings.TrimSpace(r.ScriptText) == "" {
		r.ScriptText = r.Caption
	}
	return r
}

// Inputs returns the request as composition input props.
func (r RenderRequest) Inputs() map[string]any {
	return map[string]any{
		"videoUrl":   r.VideoURL,
		"caption":    r.Caption,
		"scriptText": r.ScriptText,
	}
}

// IsMediaURL reports whether raw is an absolute http(s) or file URL.
func IsMediaURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Path != ""
	default:
		return false
	}
}
